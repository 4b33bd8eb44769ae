package sms

import "time"

// MessageLog is the GORM model for outbound SMS records. Delivery reports
// arriving on the webhook update status, delivered_at and cost.
type MessageLog struct {
	ID            uint       `gorm:"column:id;primaryKey;autoIncrement"`
	MessageID     string     `gorm:"column:message_id;type:varchar(100);index"`
	Recipient     string     `gorm:"column:recipient;type:varchar(20);index;not null"`
	Message       string     `gorm:"column:message;type:text;not null"`
	Status        string     `gorm:"column:status;type:varchar(20);default:sent"`
	MessageType   string     `gorm:"column:message_type;type:varchar(30);default:notification"`
	ContractID    string     `gorm:"column:contract_id;type:varchar(50);index"`
	Cost          float64    `gorm:"column:cost"`
	FailureReason string     `gorm:"column:failure_reason;type:varchar(200)"`
	SentAt        time.Time  `gorm:"column:sent_at;autoCreateTime"`
	DeliveredAt   *time.Time `gorm:"column:delivered_at"`
}

// TableName returns the GORM table name.
func (MessageLog) TableName() string { return "sms_logs" }
