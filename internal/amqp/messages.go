package amqp

import (
	"encoding/json"
	"time"
)

// DatasetUpdatedMessage announces that an ingest run appended records.
// Consumers reload the dataset; the message carries a summary only.
type DatasetUpdatedMessage struct {
	RunID       string    `json:"run_id"`
	Added       int       `json:"added"`
	Total       int       `json:"total"`
	WindowStart string    `json:"window_start"`
	WindowEnd   string    `json:"window_end"`
	LatestDate  string    `json:"latest_date"`
	Stations    []string  `json:"stations"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (m *DatasetUpdatedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetUpdatedMessageFromJSON creates a message from JSON bytes
func DatasetUpdatedMessageFromJSON(data []byte) (*DatasetUpdatedMessage, error) {
	var msg DatasetUpdatedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
