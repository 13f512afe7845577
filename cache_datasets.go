package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// resourceName identifies one of the three remote datasets.
type resourceName string

const (
	resourceScores   resourceName = "scores"
	resourceMessages resourceName = "messages"
	resourceTotal    resourceName = "total"
)

// allResources is the fixed set fetched every cycle, in log/persist order.
var allResources = [...]resourceName{resourceScores, resourceMessages, resourceTotal}

type scoreEntry struct {
	User  string
	Score int64
}

// scoreTable keeps the key order of the remote JSON object; ranking ties are
// broken by it.
type scoreTable []scoreEntry

type chatMessage struct {
	// Time is kept exactly as the remote formats it.
	Time    string `json:"message_time"`
	Content string `json:"content"`
}

// messageLog maps username to that user's messages, oldest first.
type messageLog map[string][]chatMessage

type counterPayload struct {
	Count *int64 `json:"count"`
}

// resourcePayload is one downloaded and decoded resource. Only the field
// matching name is populated.
type resourcePayload struct {
	name     resourceName
	raw      []byte
	digest   string
	scores   scoreTable
	messages messageLog
	count    int64
}

// decodeResource parses raw into the dataset for name. The returned error is
// the bare decode failure; callers wrap it in a parseError.
func decodeResource(name resourceName, raw []byte) (resourcePayload, error) {
	p := resourcePayload{name: name, raw: raw, digest: payloadDigest(raw)}
	var err error
	switch name {
	case resourceScores:
		p.scores, err = parseScoreTable(raw)
	case resourceMessages:
		p.messages, err = parseMessageLog(raw)
	case resourceTotal:
		p.count, err = parseCounter(raw)
	default:
		err = fmt.Errorf("unknown resource %q", name)
	}
	return p, err
}

// parseScoreTable decodes a {"user": score, ...} object without losing key
// order. A repeated key keeps its first position and its last value.
func parseScoreTable(raw []byte) (scoreTable, error) {
	if !sonic.Valid(raw) {
		return nil, errors.New("score table is not valid JSON")
	}
	root, err := sonic.Get(raw)
	if err != nil {
		return nil, err
	}
	if root.Type() != ast.V_OBJECT {
		return nil, errors.New("score table is not a JSON object")
	}

	table := make(scoreTable, 0, 64)
	index := make(map[string]int, 64)
	var entryErr error
	err = root.ForEach(func(path ast.Sequence, node *ast.Node) bool {
		if path.Key == nil {
			entryErr = errors.New("score table entry without key")
			return false
		}
		user := *path.Key
		if node.TypeSafe() != ast.V_NUMBER {
			entryErr = fmt.Errorf("score for %q is not a number", user)
			return false
		}
		num, err := node.Number()
		if err != nil {
			entryErr = fmt.Errorf("score for %q: %w", user, err)
			return false
		}
		score, err := strconv.ParseInt(string(num), 10, 64)
		if err != nil {
			entryErr = fmt.Errorf("score for %q: %w", user, err)
			return false
		}
		if i, ok := index[user]; ok {
			table[i].Score = score
			return true
		}
		index[user] = len(table)
		table = append(table, scoreEntry{User: user, Score: score})
		return true
	})
	if entryErr != nil {
		return nil, entryErr
	}
	if err != nil {
		return nil, err
	}
	return table, nil
}

func parseMessageLog(raw []byte) (messageLog, error) {
	var log messageLog
	if err := fastJSONUnmarshal(raw, &log); err != nil {
		return nil, err
	}
	if log == nil {
		return nil, errors.New("message log is null")
	}
	return log, nil
}

func parseCounter(raw []byte) (int64, error) {
	var c counterPayload
	if err := fastJSONUnmarshal(raw, &c); err != nil {
		return 0, err
	}
	if c.Count == nil {
		return 0, errors.New(`counter payload has no "count"`)
	}
	return *c.Count, nil
}
