package domain

// ServiceData one observed measurement of a service, rows sharing a CallID form a batch
type ServiceData struct {
	ID                     int64   `json:"id,string" gorm:"primaryKey;autoIncrement:false"`
	ServiceID              int64   `json:"service,string" gorm:"not null;index:idx_service_data_call"`
	Time                   float64 `json:"time" gorm:"index"` // seconds
	CallID                 int64   `json:"callId" gorm:"column:call_id;index:idx_service_data_call"`
	SuccessfulTransactions int64   `json:"successfulTransactions"`
	FailedTransactions     int64   `json:"failedTransactions"`
	DroppedTransactions    int64   `json:"droppedTransactions"`
	AvgResponseTime        float64 `json:"avgResponseTime"`
}

// TableName Specify table name
func (ServiceData) TableName() string {
	return "service_data"
}

// Total number of transactions recorded by the sample
func (d ServiceData) Total() int64 {
	return d.SuccessfulTransactions + d.FailedTransactions + d.DroppedTransactions
}
