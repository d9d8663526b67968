package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// BatchSavedType is the AMQP message type of BatchSavedMessage.
const BatchSavedType = "ledger.batch_saved"

// BatchSavedMessage announces that a batch was stored. It identifies the
// batch by owner and timestamp; consumers read the rows from the database.
type BatchSavedMessage struct {
	UserID    int64     `json:"user_id"`
	Date      string    `json:"date"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBatchSavedMessage(userID int64, date string, count int) *BatchSavedMessage {
	return &BatchSavedMessage{
		UserID:    userID,
		Date:      date,
		Count:     count,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BatchSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BatchSavedMessageFromJSON decodes and checks a message body.
func BatchSavedMessageFromJSON(data []byte) (*BatchSavedMessage, error) {
	var msg BatchSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, fmt.Errorf("invalid user_id %d", msg.UserID)
	}
	if msg.Date == "" {
		return nil, fmt.Errorf("missing date")
	}
	return &msg, nil
}
