package discovery

import "sync"

// OrgConfidenceCache remembers, within a single run, which organizations
// item sampling has already judged. Once an organization has enough
// confirmed records, its remaining candidates skip sampling entirely.
// The cache is deliberately not persisted: an organization's purchasing
// focus drifts, so trust earned in one run must not leak into the next.
type OrgConfidenceCache struct {
	mu        sync.Mutex
	confirmed map[string]int
	rejected  map[string]bool
	trustMin  int
}

// NewOrgConfidenceCache creates a cache that trusts an organization after
// trustMin confirmed-relevant records.
func NewOrgConfidenceCache(trustMin int) *OrgConfidenceCache {
	if trustMin <= 0 {
		trustMin = 2
	}
	return &OrgConfidenceCache{
		confirmed: map[string]int{},
		rejected:  map[string]bool{},
		trustMin:  trustMin,
	}
}

// Confirm records one confirmed-relevant record for the organization.
func (c *OrgConfidenceCache) Confirm(cnpj string) {
	if cnpj == "" {
		return
	}
	c.mu.Lock()
	c.confirmed[cnpj]++
	delete(c.rejected, cnpj)
	c.mu.Unlock()
}

// Reject marks the organization as confirmed-irrelevant. A later Confirm
// overrides the rejection.
func (c *OrgConfidenceCache) Reject(cnpj string) {
	if cnpj == "" {
		return
	}
	c.mu.Lock()
	if c.confirmed[cnpj] == 0 {
		c.rejected[cnpj] = true
	}
	c.mu.Unlock()
}

// Trusted reports whether the organization has earned auto-approval.
func (c *OrgConfidenceCache) Trusted(cnpj string) bool {
	if cnpj == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed[cnpj] >= c.trustMin
}

// Rejected reports whether the organization was judged irrelevant.
func (c *OrgConfidenceCache) Rejected(cnpj string) bool {
	if cnpj == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected[cnpj]
}

// ConfirmedCount returns how many records were confirmed for the org.
func (c *OrgConfidenceCache) ConfirmedCount(cnpj string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.confirmed[cnpj]
}
