package checkpoint

import (
	"sort"
)

// Checkpoint is the single unit of durable pipeline state. LastPage only
// advances after a page's persistence and distribution attempts have
// completed, so a crash re-processes at most one already-deduplicated page.
type Checkpoint struct {
	LastPage           int                 `json:"last_page"`
	CredentialToken    string              `json:"credential_token,omitempty"`
	FailedUploadIDs    []string            `json:"failed_upload_ids"`
	FailedDistribution map[string][]string `json:"failed_distribution"`
}

// New returns a zero-valued checkpoint for a first run.
func New() *Checkpoint {
	return &Checkpoint{
		FailedUploadIDs:    []string{},
		FailedDistribution: map[string][]string{},
	}
}

// AddFailedUpload records an external id whose media mirroring did not
// fully succeed. Adding an id twice is a no-op.
func (c *Checkpoint) AddFailedUpload(externalID string) {
	for _, id := range c.FailedUploadIDs {
		if id == externalID {
			return
		}
	}
	c.FailedUploadIDs = append(c.FailedUploadIDs, externalID)
}

// SetFailedUploads replaces the upload failure set with exactly the ids
// still failing after a remediation pass.
func (c *Checkpoint) SetFailedUploads(externalIDs []string) {
	c.FailedUploadIDs = dedupSorted(externalIDs)
}

// MergeDistributionFailures unions ids into a domain's failure set. An
// empty batch leaves the checkpoint untouched: full success for a domain
// never erases failures recorded by earlier pages.
func (c *Checkpoint) MergeDistributionFailures(domain string, externalIDs []string) {
	if len(externalIDs) == 0 {
		return
	}
	if c.FailedDistribution == nil {
		c.FailedDistribution = map[string][]string{}
	}
	c.FailedDistribution[domain] = dedupSorted(append(c.FailedDistribution[domain], externalIDs...))
}

// SetDistributionFailures replaces the whole distribution failure map with
// the authoritative result of a remediation pass.
func (c *Checkpoint) SetDistributionFailures(failures map[string][]string) {
	normalized := map[string][]string{}
	for domain, ids := range failures {
		if len(ids) == 0 {
			continue
		}
		normalized[domain] = dedupSorted(ids)
	}
	c.FailedDistribution = normalized
}

// normalize sorts and deduplicates the failure sets so saved checkpoints
// are byte-stable across runs.
func (c *Checkpoint) normalize() {
	c.FailedUploadIDs = dedupSorted(c.FailedUploadIDs)
	if c.FailedDistribution == nil {
		c.FailedDistribution = map[string][]string{}
	}
	for domain, ids := range c.FailedDistribution {
		c.FailedDistribution[domain] = dedupSorted(ids)
	}
}

func dedupSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
