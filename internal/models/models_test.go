package models_test

import (
	"errors"
	"math"
	"testing"

	"ratingpart/internal/models"
)

func TestParseLine(t *testing.T) {
	rec, err := models.ParseLine("1::122::5::838985046")
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if rec.UserID != 1 || rec.MovieID != 122 || rec.Rating != 5 || rec.Timestamp != 838985046 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.Extra1 != "" || rec.Extra2 != "" || rec.Extra3 != "" {
		t.Errorf("separator fields not empty: %+v", rec)
	}

	want := models.Rating{UserID: 1, MovieID: 122, Rating: 5}
	if got := rec.ToRating(); got != want {
		t.Errorf("ToRating: got %+v, want %+v", got, want)
	}
}

func TestParseLineMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"too few fields", "1::122::5"},
		{"too many fields", "1::122::5::838985046::9"},
		{"single colons", "1:122:5:838985046"},
		{"bad userid", "x::122::5::838985046"},
		{"bad movieid", "1::y::5::838985046"},
		{"bad rating", "1::122::five::838985046"},
		{"bad timestamp", "1::122::5::noon"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.ParseLine(tt.line)
			if !errors.Is(err, models.ErrMalformedLine) {
				t.Errorf("ParseLine(%q) error = %v, want ErrMalformedLine", tt.line, err)
			}
		})
	}
}

func TestParseLineTrimsLineEnding(t *testing.T) {
	rec, err := models.ParseLine("2::231::0.5::838983392\r\n")
	if err != nil {
		t.Fatalf("ParseLine returned error: %v", err)
	}
	if rec.Rating != 0.5 || rec.Timestamp != 838983392 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestRatingValidate(t *testing.T) {
	tests := []struct {
		rating  float64
		wantErr bool
	}{
		{0, false},
		{2.5, false},
		{5, false},
		{-0.5, true},
		{5.5, true},
		{math.NaN(), true},
		{math.Inf(1), true},
		{math.Inf(-1), true},
	}

	for _, tt := range tests {
		err := models.Rating{UserID: 1, MovieID: 1, Rating: tt.rating}.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%v) error = %v, wantErr %v", tt.rating, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, models.ErrRatingOutOfRange) {
			t.Errorf("Validate(%v) error = %v, want ErrRatingOutOfRange", tt.rating, err)
		}
	}
}

func TestFormatLine(t *testing.T) {
	r := models.Rating{UserID: 3, MovieID: 42, Rating: 3.5}
	line := models.FormatLine(r, 838985046)
	if line != "3::42::3.5::838985046" {
		t.Errorf("FormatLine: got %q", line)
	}

	rec, err := models.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine(FormatLine) returned error: %v", err)
	}
	if rec.ToRating() != r {
		t.Errorf("round trip: got %+v, want %+v", rec.ToRating(), r)
	}
}

func TestParseScheme(t *testing.T) {
	tests := []struct {
		input   string
		want    models.Scheme
		wantErr bool
	}{
		{"range", models.SchemeRange, false},
		{" RANGE ", models.SchemeRange, false},
		{"roundrobin", models.SchemeRoundRobin, false},
		{"round-robin", models.SchemeRoundRobin, false},
		{"rrobin", models.SchemeRoundRobin, false},
		{"hash", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := models.ParseScheme(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseScheme(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, models.ErrInvalidScheme) {
			t.Errorf("ParseScheme(%q) error = %v, want ErrInvalidScheme", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseScheme(%q) = %q, want %q", tt.input, got, tt.want)
		}
		if err == nil && !got.IsValid() {
			t.Errorf("ParseScheme(%q) returned invalid scheme %q", tt.input, got)
		}
	}
}

func TestNewEnvelope(t *testing.T) {
	r := models.Rating{UserID: 1, MovieID: 2, Rating: 4}
	a := models.NewEnvelope(r, models.SchemeRange, "kafka")
	b := models.NewEnvelope(r, models.SchemeRange, "kafka")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("envelope IDs not unique: %q %q", a.ID, b.ID)
	}
	if a.Rating != r || a.Scheme != models.SchemeRange || a.Source != "kafka" {
		t.Errorf("unexpected envelope: %+v", a)
	}
	if a.ReceivedAt.IsZero() {
		t.Error("ReceivedAt not set")
	}
}
