package backtest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Event is one normalized government trade. Dates are canonical
// YYYY-MM-DD strings; an empty date means the source row lacked it.
type Event struct {
	ID              string   `json:"event_id"`
	Ticker          string   `json:"ticker"`
	DatasetID       string   `json:"dataset_id"`
	Actor           string   `json:"actor"`
	Side            string   `json:"side"`
	TransactionDate string   `json:"transaction_date"`
	ReportDate      string   `json:"report_date,omitempty"`
	Shares          *float64 `json:"shares,omitempty"`
	Amount          string   `json:"amount,omitempty"`
}

// datasetShape names the columns a Quiver dataset uses, in lookup order.
type datasetShape struct {
	actorKeys  []string
	txKeys     []string
	reportKeys []string
	sideKeys   []string
	sharesKeys []string
	amountKeys []string
}

var datasetShapes = map[string]datasetShape{
	"ticker_congress_trading": {
		actorKeys:  []string{"Representative", "Name"},
		txKeys:     []string{"TransactionDate", "Transaction_Date", "Date"},
		reportKeys: []string{"ReportDate", "Report_Date", "Disclosed"},
		sideKeys:   []string{"Transaction", "Type"},
		sharesKeys: []string{"Shares"},
		amountKeys: []string{"Range", "Amount", "Trade_Size_USD"},
	},
	"ticker_senate_trading": {
		actorKeys:  []string{"Senator", "Name"},
		txKeys:     []string{"TransactionDate", "Date"},
		reportKeys: []string{"ReportDate", "Disclosed", "Filed"},
		sideKeys:   []string{"Transaction", "Type"},
		sharesKeys: []string{"Shares"},
		amountKeys: []string{"Amount", "Range", "Trade_Size_USD"},
	},
	"ticker_house_trading": {
		actorKeys:  []string{"Representative", "Name"},
		txKeys:     []string{"TransactionDate", "Transaction_Date", "Date"},
		reportKeys: []string{"ReportDate", "Report_Date", "Disclosed"},
		sideKeys:   []string{"Transaction", "Type"},
		sharesKeys: []string{"Shares"},
		amountKeys: []string{"Range", "Amount", "Trade_Size_USD"},
	},
}

// NormalizeEvents turns raw dataset rows into events. Output order is
// canonical (transaction date, dataset, actor, id) so equal inputs in any
// row order normalize to the identical slice.
func NormalizeEvents(ticker string, rowsByDataset map[string][]map[string]any) ([]Event, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	datasetIDs := make([]string, 0, len(rowsByDataset))
	for dsID := range rowsByDataset {
		datasetIDs = append(datasetIDs, dsID)
	}
	sort.Strings(datasetIDs)

	var events []Event
	for _, dsID := range datasetIDs {
		shape, known := datasetShapes[dsID]
		if !known {
			return nil, errf(CodeInvalidQuiverRow, "unknown dataset %q", dsID)
		}
		for _, row := range rowsByDataset[dsID] {
			ev, err := normalizeRow(ticker, dsID, shape, row)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
	}

	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.TransactionDate != b.TransactionDate {
			return a.TransactionDate < b.TransactionDate
		}
		if a.DatasetID != b.DatasetID {
			return a.DatasetID < b.DatasetID
		}
		if a.Actor != b.Actor {
			return a.Actor < b.Actor
		}
		return a.ID < b.ID
	})
	return events, nil
}

func normalizeRow(ticker, dsID string, shape datasetShape, row map[string]any) (Event, error) {
	actor := strings.TrimSpace(stringField(row, shape.actorKeys))
	if actor == "" {
		return Event{}, errf(CodeInvalidQuiverRow, "%s row has no actor field", dsID)
	}

	rawTx := stringField(row, shape.txKeys)
	if strings.TrimSpace(rawTx) == "" {
		return Event{}, errf(CodeMissingRequiredAnchorDate,
			"%s row for %s has no transaction date", dsID, actor)
	}
	txDate, err := parseEventDate(rawTx)
	if err != nil {
		return Event{}, err
	}

	reportDate := ""
	if rawReport := stringField(row, shape.reportKeys); strings.TrimSpace(rawReport) != "" {
		reportDate, err = parseEventDate(rawReport)
		if err != nil {
			return Event{}, err
		}
	}

	ev := Event{
		Ticker:          ticker,
		DatasetID:       dsID,
		Actor:           actor,
		Side:            normalizeSide(stringField(row, shape.sideKeys)),
		TransactionDate: txDate,
		ReportDate:      reportDate,
		Shares:          numberField(row, shape.sharesKeys),
		Amount:          strings.TrimSpace(stringField(row, shape.amountKeys)),
	}
	ev.ID = eventID(ev)
	return ev, nil
}

// eventID hashes the identity tuple. It is independent of row order and
// of any positional index in the source payload.
func eventID(ev Event) string {
	shares := ""
	if ev.Shares != nil {
		shares = strconv.FormatFloat(*ev.Shares, 'f', -1, 64)
	}
	tuple := strings.Join([]string{
		ev.Ticker, ev.DatasetID, ev.Actor, ev.Side,
		ev.TransactionDate, ev.ReportDate, shares,
	}, "\x1f")
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

func normalizeSide(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case s == "":
		return "unknown"
	case strings.HasPrefix(s, "purchase") || strings.HasPrefix(s, "buy"):
		return "buy"
	case strings.HasPrefix(s, "sale") || strings.HasPrefix(s, "sell"):
		return "sell"
	case strings.HasPrefix(s, "exchange"):
		return "exchange"
	default:
		return s
	}
}

func stringField(row map[string]any, keys []string) string {
	for _, key := range keys {
		if v, ok := row[key]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

func numberField(row map[string]any, keys []string) *float64 {
	for _, key := range keys {
		v, ok := row[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return &t
		case string:
			cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(t)
			if f, err := strconv.ParseFloat(cleaned, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// eventDateLayouts covers the date shapes Quiver emits across datasets.
// Layouts without a zone are interpreted as UTC.
var eventDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"1/2/2006",
}

func parseEventDate(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range eventDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format("2006-01-02"), nil
		}
	}
	return "", errf(CodeInvalidEventDate, "unparseable date %q", raw)
}

// AnchorMode selects which event dates seed forward-return windows.
type AnchorMode string

const (
	AnchorTransaction AnchorMode = "transaction"
	AnchorReport      AnchorMode = "report"
	AnchorBoth        AnchorMode = "both"
)

// ParseAnchorMode is strict; the CLI validates before the engine runs.
func ParseAnchorMode(s string) (AnchorMode, error) {
	switch AnchorMode(strings.ToLower(strings.TrimSpace(s))) {
	case AnchorTransaction:
		return AnchorTransaction, nil
	case AnchorReport:
		return AnchorReport, nil
	case AnchorBoth:
		return AnchorBoth, nil
	}
	return "", fmt.Errorf("unknown anchor mode %q (want transaction, report or both)", s)
}

// Anchor is one dated measurement seed for an event.
type Anchor struct {
	EventID string `json:"event_id"`
	Kind    string `json:"anchor_kind"`
	Date    string `json:"anchor_date"`
}

// ResolveAnchors expands events into anchors per the mode. Mode both
// requires each event to carry both dates.
func ResolveAnchors(events []Event, mode AnchorMode) ([]Anchor, error) {
	var anchors []Anchor
	for _, ev := range events {
		switch mode {
		case AnchorTransaction:
			anchors = append(anchors, Anchor{EventID: ev.ID, Kind: "transaction", Date: ev.TransactionDate})
		case AnchorReport:
			if ev.ReportDate == "" {
				return nil, errf(CodeMissingRequiredAnchorDate,
					"event %s (%s) has no report date", ev.ID, ev.Actor)
			}
			anchors = append(anchors, Anchor{EventID: ev.ID, Kind: "report", Date: ev.ReportDate})
		case AnchorBoth:
			if ev.TransactionDate == "" || ev.ReportDate == "" {
				return nil, errf(CodeMissingRequiredAnchorDate,
					"event %s (%s) needs both transaction and report dates", ev.ID, ev.Actor)
			}
			anchors = append(anchors,
				Anchor{EventID: ev.ID, Kind: "transaction", Date: ev.TransactionDate},
				Anchor{EventID: ev.ID, Kind: "report", Date: ev.ReportDate})
		default:
			return nil, fmt.Errorf("unknown anchor mode %q", mode)
		}
	}
	return anchors, nil
}
