package models

// Note is the materialized view of the latest editNote event per note id.
// It is a disposable cache, reconstructable by replaying the event log.
type Note struct {
	ID       string `json:"id"`
	LastEdit int64  `json:"lastEdit"`
	Text     string `json:"text"`
}

// Message is the materialized view built by replaying postMsg, editMsg,
// checkMsg/uncheckMsg and deleteMsg events.
type Message struct {
	ID      string `json:"id"`
	SentAt  int64  `json:"sentAt"`
	Text    string `json:"text"`
	Tag     *Tag   `json:"tag,omitempty"`
	Checked bool   `json:"checked"`
}
