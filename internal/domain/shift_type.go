package domain

type ShiftType struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	StartTime       string `json:"startTime"`
	EndTime         string `json:"endTime"`
	CrossesMidnight bool   `json:"crossesMidnight"`
}
