package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Rating bounds.
const (
	MinRating = 0.0
	MaxRating = 5.0
)

// FieldSeparator separates the fields of a ratings file line.
const FieldSeparator = ":"

// lineFields is the number of fields in userid:extra:movieid:extra:rating:extra:timestamp.
const lineFields = 7

// Validation errors
var (
	ErrRatingOutOfRange = errors.New("rating must be between 0.0 and 5.0")
	ErrMalformedLine    = errors.New("malformed ratings line")
)

// Rating is a single user's rating of a movie.
type Rating struct {
	UserID  int64   `json:"userid"`
	MovieID int64   `json:"movieid"`
	Rating  float64 `json:"rating"`
}

// Validate checks that the rating value is in range. NaN is never in range.
func (r Rating) Validate() error {
	if math.IsNaN(r.Rating) || r.Rating < MinRating || r.Rating > MaxRating {
		return fmt.Errorf("%w: got %v", ErrRatingOutOfRange, r.Rating)
	}
	return nil
}

// LineError reports a malformed line in a ratings file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// RawRecord is one parsed line of a ratings file, scaffold columns included.
type RawRecord struct {
	UserID    int64
	Extra1    string
	MovieID   int64
	Extra2    string
	Rating    float64
	Extra3    string
	Timestamp int64
}

// ToRating returns the record without its scaffold columns.
func (r RawRecord) ToRating() Rating {
	return Rating{UserID: r.UserID, MovieID: r.MovieID, Rating: r.Rating}
}

// ParseLine parses a userid:extra:movieid:extra:rating:extra:timestamp line,
// e.g. "1::122::5::838985046".
func ParseLine(line string) (RawRecord, error) {
	fields := strings.Split(strings.TrimRight(line, "\r\n"), FieldSeparator)
	if len(fields) != lineFields {
		return RawRecord{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedLine, lineFields, len(fields))
	}

	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("%w: userid: %v", ErrMalformedLine, err)
	}
	movieID, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("%w: movieid: %v", ErrMalformedLine, err)
	}
	rating, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("%w: rating: %v", ErrMalformedLine, err)
	}
	ts, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("%w: timestamp: %v", ErrMalformedLine, err)
	}

	return RawRecord{
		UserID:    userID,
		Extra1:    fields[1],
		MovieID:   movieID,
		Extra2:    fields[3],
		Rating:    rating,
		Extra3:    fields[5],
		Timestamp: ts,
	}, nil
}

// FormatLine renders a rating in the ratings file layout.
func FormatLine(r Rating, timestamp int64) string {
	return fmt.Sprintf("%d::%d::%s::%d",
		r.UserID, r.MovieID, strconv.FormatFloat(r.Rating, 'f', -1, 64), timestamp)
}
