package graph

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/OFFIS-RIT/netunion/pkg/common"
	"github.com/OFFIS-RIT/netunion/pkg/loader"
)

const edgeFields = 6

// ErrMalformedRecord is the sentinel behind every MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed network record")

// MalformedRecordError reports a network record that could not be parsed.
// Line is 1-based; 0 means the problem concerns the record as a whole.
type MalformedRecordError struct {
	SourceRef string
	Line      int
	Reason    string
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s:%d: %s", ErrMalformedRecord, e.SourceRef, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedRecord, e.SourceRef, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}

func malformed(rec loader.Record, line int, format string, args ...any) error {
	return &MalformedRecordError{
		SourceRef: rec.SourceRef,
		Line:      line,
		Reason:    fmt.Sprintf(format, args...),
	}
}

// ParseNetwork turns a raw record into a Network. The ID is left at zero;
// it is assigned when the network enters a Catalogue.
//
// The first non-blank line is the score header, e.g. "% score [0.1 2.5 3]".
// Later lines starting with '%' declare interaction types and are ignored.
// Every other non-blank line is an edge "source;sink;type;directedness;weight;id".
func ParseNetwork(rec loader.Record) (*common.Network, error) {
	var (
		scores    common.ScoreVector
		gotHeader bool
		edges     []common.Edge
	)

	sc := bufio.NewScanner(bytes.NewReader(rec.Text))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		if !gotHeader {
			s, err := parseScoreHeader(line)
			if err != nil {
				return nil, malformed(rec, lineNo, "score header: %v", err)
			}
			scores = s
			gotHeader = true
			continue
		}

		if strings.HasPrefix(line, "%") {
			continue
		}

		edge, err := parseEdge(line)
		if err != nil {
			return nil, malformed(rec, lineNo, "edge: %v", err)
		}
		edges = append(edges, edge)
	}
	if err := sc.Err(); err != nil {
		return nil, malformed(rec, lineNo, "read: %v", err)
	}

	if !gotHeader {
		return nil, malformed(rec, 0, "missing score header")
	}
	if len(edges) == 0 {
		return nil, malformed(rec, 0, "no edges")
	}

	return &common.Network{
		Size:      rec.Size,
		SourceRef: rec.SourceRef,
		Edges:     edges,
		Nodes:     common.NodesOf(edges),
		Scores:    scores,
	}, nil
}

func parseScoreHeader(line string) (common.ScoreVector, error) {
	open := strings.IndexByte(line, '[')
	end := strings.LastIndexByte(line, ']')
	if open < 0 || end < open {
		return common.ScoreVector{}, fmt.Errorf("expected a bracketed score list, got %q", line)
	}

	fields := strings.FieldsFunc(line[open+1:end], func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) < 2 || len(fields) > 4 {
		return common.ScoreVector{}, fmt.Errorf("expected 2 to 4 scores, got %d", len(fields))
	}

	values := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return common.ScoreVector{}, fmt.Errorf("score %d: %q is not a number", i+1, f)
		}
		values[i] = v
	}

	return common.ScoreVector{
		Size:      values[0],
		Main:      values[1],
		Secondary: values[2],
		Tertiary:  values[3],
	}, nil
}

func parseEdge(line string) (common.Edge, error) {
	parts := strings.Split(line, ";")
	if len(parts) != edgeFields {
		return common.Edge{}, fmt.Errorf("expected %d fields, got %d", edgeFields, len(parts))
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if parts[0] == "" || parts[1] == "" {
		return common.Edge{}, fmt.Errorf("empty endpoint")
	}

	weight, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return common.Edge{}, fmt.Errorf("weight %q is not a number", parts[4])
	}
	id, err := strconv.ParseInt(parts[5], 10, 64)
	if err != nil {
		return common.Edge{}, fmt.Errorf("id %q is not an integer", parts[5])
	}

	return common.Edge{
		Source:   common.NodeID(parts[0]),
		Sink:     common.NodeID(parts[1]),
		Type:     parts[2],
		Directed: parts[3] == "directed",
		Weight:   weight,
		ID:       id,
	}, nil
}
