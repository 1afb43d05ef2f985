package catalog

// VideoSummary is one entry of a catalog listing page. Only identity and
// display fields are present; everything else needs a detail fetch.
type VideoSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Cover string `json:"cover"`
}

// VideoDetail is the enriched payload for a single catalog entry. The
// shape is validated here at the adapter boundary so callers never touch
// raw response maps.
type VideoDetail struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Cover             string   `json:"cover"`
	VideoList         []string `json:"video_list"`
	DownloadURL       string   `json:"download_url"`
	Desc              string   `json:"desc"`
	AltDesc           string   `json:"c_desc"`
	Tags              []string `json:"tags"`
	TotalEpisodes     int      `json:"total_episodes"`
	FreeWatchEpisodes int      `json:"free_watch_episodes"`
}

// Description returns the primary description, falling back to the
// secondary field some payloads carry instead.
func (d *VideoDetail) Description() string {
	if d.Desc != "" {
		return d.Desc
	}
	return d.AltDesc
}
