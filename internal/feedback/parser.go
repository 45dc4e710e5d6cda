// Package feedback parses ministry feedback files and replays their outcomes
// onto batch files, headers, line links and the underlying entities.
package feedback

import (
	"fmt"
	"strconv"
	"strings"
)

// Family tags a feedback group as journal voucher or accounts payable.
type Family string

const (
	FamilyEJV Family = "EJV"
	FamilyAP  Family = "AP"
)

// Group is one BG..BT span of a feedback file.
type Group struct {
	Family Family
	Lines  []string
}

// stripBOM drops the UTF-8 byte order mark some transfers prepend.
func stripBOM(content string) string {
	return strings.TrimPrefix(content, "\ufeff")
}

// recordCode returns the two-character record code at offset 2.
func recordCode(line string) string {
	if len(line) < 4 {
		return ""
	}
	return line[2:4]
}

// GroupBatches splits feedback content into BG..BT groups. The four-character
// prefix of the group line tells the family apart: GABG and GIBG open journal
// voucher groups, APBG opens accounts payable groups.
func GroupBatches(content string) []Group {
	var groups []Group
	var current *Group

	for _, line := range strings.Split(stripBOM(content), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "GABG") || strings.HasPrefix(line, "GIBG"):
			groups = append(groups, Group{Family: FamilyEJV, Lines: []string{line}})
			current = &groups[len(groups)-1]
		case strings.HasPrefix(line, "APBG"):
			groups = append(groups, Group{Family: FamilyAP, Lines: []string{line}})
			current = &groups[len(groups)-1]
		default:
			if current != nil {
				current.Lines = append(current.Lines, line)
			}
		}
	}
	return groups
}

// FixJVDetailLine repairs detail lines whose flow-through field the ledger
// system left-shifted into the padded tail. A zero inside the padding span
// [300:315) means the return code drifted left; spaces are re-inserted ahead
// of it to restore the offsets.
func FixJVDetailLine(line string) string {
	if len(line) < 315 {
		return line
	}
	zeroPos := strings.IndexByte(line[300:315], '0')
	if zeroPos < 0 {
		return line
	}
	return line[:300+zeroPos] + strings.Repeat(" ", 15-zeroPos) + line[300+zeroPos:]
}

// FlowThrough is the parsed flow-through reference of one detail line.
type FlowThrough struct {
	InvoiceID             int64
	PartnerDisbursementID int64
	PartialRefundID       int64
	IsPartialRefund       bool
}

// ParseFlowThrough decodes the flow-through reference. Supported shapes:
// "1111", "1111-2222", "1111-PR-3333" and "1111-2222-PR".
func ParseFlowThrough(raw string) (FlowThrough, error) {
	var ft FlowThrough
	value := strings.TrimSpace(raw)

	parseID := func(s string) (int64, error) {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("feedback: malformed flow-through %q: %w", value, err)
		}
		return id, nil
	}

	var err error
	switch {
	case strings.HasSuffix(value, "-PR"):
		ft.IsPartialRefund = true
		base := strings.TrimSuffix(value, "-PR")
		if invoice, partner, found := strings.Cut(base, "-"); found {
			if ft.InvoiceID, err = parseID(invoice); err != nil {
				return ft, err
			}
			if ft.PartnerDisbursementID, err = parseID(partner); err != nil {
				return ft, err
			}
		} else if ft.InvoiceID, err = parseID(base); err != nil {
			return ft, err
		}
	case strings.Contains(value, "-PR-"):
		ft.IsPartialRefund = true
		invoice, refund, _ := strings.Cut(value, "-PR-")
		if ft.InvoiceID, err = parseID(invoice); err != nil {
			return ft, err
		}
		if ft.PartialRefundID, err = parseID(refund); err != nil {
			return ft, err
		}
	case strings.Contains(value, "-"):
		invoice, partner, _ := strings.Cut(value, "-")
		if ft.InvoiceID, err = parseID(invoice); err != nil {
			return ft, err
		}
		if ft.PartnerDisbursementID, err = parseID(partner); err != nil {
			return ft, err
		}
	default:
		if ft.InvoiceID, err = parseID(value); err != nil {
			return ft, err
		}
	}
	return ft, nil
}

// batchNumberOf extracts the nine-digit batch number from a BG line.
func batchNumberOf(line string) (int64, error) {
	if len(line) < 24 {
		return 0, fmt.Errorf("feedback: BG line too short: %d characters", len(line))
	}
	id, err := strconv.ParseInt(strings.TrimSpace(line[15:24]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("feedback: malformed batch number %q: %w", line[15:24], err)
	}
	return id, nil
}

// headerIDOf extracts the batch header id from the trailing eight digits of a
// journal name.
func headerIDOf(journalName string) (int64, error) {
	name := strings.TrimSpace(journalName)
	if len(name) < 8 {
		return 0, fmt.Errorf("feedback: malformed journal name %q", journalName)
	}
	id, err := strconv.ParseInt(name[len(name)-8:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("feedback: malformed journal name %q: %w", journalName, err)
	}
	return id, nil
}
