package tips

// Tip is one row of the tips table. A tip with a ParentID is an edit of
// the tip it points at.
type Tip struct {
	TipID        int64  `json:"tip_id"`
	ConnectionID string `json:"connection_id"`
	Title        string `json:"title,omitempty"`
	Body         string `json:"body"`
	Attribution  string `json:"attribution,omitempty"`
	Language     string `json:"language,omitempty"`
	Approved     bool   `json:"approved"`
	Deleted      bool   `json:"deleted"`
	ParentID     *int64 `json:"parent_id,omitempty"`
}

// IsEdit reports whether the tip revises another tip.
func (t Tip) IsEdit() bool { return t.ParentID != nil }

// NewTip is the caller-supplied payload for AddTip. Storage assigns the id and
// both moderation flags start false.
type NewTip struct {
	ConnectionID string
	Title        string
	Body         string
	Attribution  string
	Language     string
	ParentID     *int64
}
