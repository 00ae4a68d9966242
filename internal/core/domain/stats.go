package domain

// Stats is a pure aggregation over a ticket collection.
//
// Partitions are exhaustive: Processed + Unprocessed == Total, and because
// category and sentiment are assigned atomically by the classification step,
// sum(ByCategory) + Unclassified == Total and likewise for BySentiment.
type Stats struct {
	Total        int                     `json:"total"`
	Processed    int                     `json:"processed"`
	Unprocessed  int                     `json:"unprocessed"`
	ByCategory   map[TicketCategory]int  `json:"by_category"`
	BySentiment  map[TicketSentiment]int `json:"by_sentiment"`
	Unclassified int                     `json:"unclassified"`
}

// ComputeStats recomputes the aggregation from scratch on every call.
func ComputeStats(tickets []Ticket) Stats {
	stats := Stats{
		ByCategory:  make(map[TicketCategory]int, 3),
		BySentiment: make(map[TicketSentiment]int, 3),
	}
	for _, c := range Categories() {
		stats.ByCategory[c] = 0
	}
	for _, s := range Sentiments() {
		stats.BySentiment[s] = 0
	}

	for _, t := range tickets {
		stats.Total++
		if t.Processed {
			stats.Processed++
		} else {
			stats.Unprocessed++
		}
		if t.Category.IsValid() {
			stats.ByCategory[t.Category]++
		}
		if t.Sentiment.IsValid() {
			stats.BySentiment[t.Sentiment]++
		}
		if !t.Category.IsValid() {
			stats.Unclassified++
		}
	}
	return stats
}
