package discovery

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrgCacheTrustThreshold(t *testing.T) {
	c := NewOrgConfidenceCache(2)

	assert.False(t, c.Trusted("111"))
	c.Confirm("111")
	assert.False(t, c.Trusted("111"), "one confirmation is not enough")
	c.Confirm("111")
	assert.True(t, c.Trusted("111"))
	assert.Equal(t, 2, c.ConfirmedCount("111"))
}

func TestOrgCacheRejection(t *testing.T) {
	c := NewOrgConfidenceCache(2)

	c.Reject("222")
	assert.True(t, c.Rejected("222"))

	// A confirmation overrides an earlier rejection.
	c.Confirm("222")
	assert.False(t, c.Rejected("222"))

	// A rejection does not override existing confirmations.
	c.Reject("222")
	assert.False(t, c.Rejected("222"))
}

func TestOrgCacheEmptyCNPJ(t *testing.T) {
	c := NewOrgConfidenceCache(1)
	c.Confirm("")
	c.Reject("")
	assert.False(t, c.Trusted(""))
	assert.False(t, c.Rejected(""))
}

func TestOrgCacheConcurrent(t *testing.T) {
	c := NewOrgConfidenceCache(2)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Confirm("333")
			c.Trusted("333")
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, c.ConfirmedCount("333"))
}
