package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"slotledger/internal/core"
)

// maxBodyBytes caps every request body.
const maxBodyBytes = 64 << 10

// decodeJSON reads exactly one JSON object from the request body into dst.
// Unknown fields, trailing data and oversize bodies are malformed requests.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return malformed(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		case errors.Is(err, io.EOF):
			return malformed("request body is empty")
		}
		return malformed("invalid JSON body: " + err.Error())
	}
	if dec.More() {
		return malformed("request body must contain a single JSON object")
	}
	return nil
}

// pathAccountID parses the {accountId} path segment.
func pathAccountID(r *http.Request) (core.AccountID, error) {
	raw := r.PathValue("accountId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, malformed(fmt.Sprintf("invalid account id %q", raw))
	}
	return core.AccountID(id), nil
}

// pathSlotID parses the {slotId} path segment. "uncategorized" and -1 both
// name the derived Uncategorized slot.
func pathSlotID(r *http.Request) (core.SlotID, error) {
	return parseSlotID(r.PathValue("slotId"))
}

func parseSlotID(raw string) (core.SlotID, error) {
	if strings.EqualFold(raw, "uncategorized") {
		return core.UncategorizedSlotID, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || (id <= 0 && core.SlotID(id) != core.UncategorizedSlotID) {
		return 0, malformed(fmt.Sprintf("invalid slot id %q", raw))
	}
	return core.SlotID(id), nil
}

// pathTransactionID returns the {txId} path segment.
func pathTransactionID(r *http.Request) (core.TransactionID, error) {
	raw := strings.TrimSpace(r.PathValue("txId"))
	if raw == "" || len(raw) > 128 {
		return "", malformed("invalid transaction id")
	}
	return core.TransactionID(raw), nil
}

// parsePeriod reads the from and to query parameters (YYYY-MM-DD). A
// missing to means today; a missing from means the first day of to's month.
func parsePeriod(r *http.Request, now time.Time) (from, to time.Time, err error) {
	q := r.URL.Query()
	to = now.UTC()
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		if to, err = time.Parse(time.DateOnly, v); err != nil {
			return time.Time{}, time.Time{}, malformed(fmt.Sprintf("invalid to date %q", v))
		}
	}
	from = time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	if v := strings.TrimSpace(q.Get("from")); v != "" {
		if from, err = time.Parse(time.DateOnly, v); err != nil {
			return time.Time{}, time.Time{}, malformed(fmt.Sprintf("invalid from date %q", v))
		}
	}
	return from, to, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
