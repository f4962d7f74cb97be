package dto

// SlotQuery selects the pool a slot listing is computed for. An empty
// CounselorID means no preference.
type SlotQuery struct {
	Date             string `form:"date" validate:"required,datetime=2006-01-02"`
	CounselorID      string `form:"counselorId"`
	ConsultationType string `form:"consultationType" validate:"required,oneof=Individual Group"`
}

// SlotListResponse lists display ranges in ascending time order.
type SlotListResponse struct {
	Date             string   `json:"date"`
	CounselorID      string   `json:"counselorId,omitempty"`
	ConsultationType string   `json:"consultationType"`
	Units            []string `json:"units"`
}
