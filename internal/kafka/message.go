package kafka

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"ratingpart/internal/models"
)

// SchemeHeader optionally carries the partitioning scheme of a message.
const SchemeHeader = "scheme"

var ErrInvalidMessage = errors.New("invalid rating message")

// RatingMessage is the JSON value of a rating message.
type RatingMessage struct {
	UserID  int64   `json:"userid"`
	MovieID int64   `json:"movieid"`
	Rating  float64 `json:"rating"`
	Scheme  string  `json:"scheme,omitempty"`
}

// EncodeMessage builds the Kafka message for a rating, keyed by user id.
func EncodeMessage(r models.Rating, scheme models.Scheme) (kafka.Message, error) {
	data, err := json.Marshal(RatingMessage{
		UserID:  r.UserID,
		MovieID: r.MovieID,
		Rating:  r.Rating,
		Scheme:  string(scheme),
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return kafka.Message{
		Key:   []byte(strconv.FormatInt(r.UserID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: SchemeHeader, Value: []byte(scheme)},
		},
	}, nil
}

// DecodeMessage turns a consumed message into an envelope. The scheme comes
// from the payload, then the scheme header, then fallback.
func DecodeMessage(msg kafka.Message, fallback models.Scheme) (*models.Envelope, error) {
	var m RatingMessage
	if err := json.Unmarshal(msg.Value, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	schemeName := m.Scheme
	if schemeName == "" {
		for _, h := range msg.Headers {
			if h.Key == SchemeHeader {
				schemeName = string(h.Value)
			}
		}
	}

	scheme := fallback
	if schemeName != "" {
		var err error
		if scheme, err = models.ParseScheme(schemeName); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
	}
	if !scheme.IsValid() {
		return nil, fmt.Errorf("%w: no partitioning scheme", ErrInvalidMessage)
	}

	r := models.Rating{UserID: m.UserID, MovieID: m.MovieID, Rating: m.Rating}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	return models.NewEnvelope(r, scheme, "kafka"), nil
}
