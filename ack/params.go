package ack

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warriorguo/nodesync/types"
)

// paramBuilder writes name=value fields joined by '&'. No separator is
// written right after a '?' so the output can extend a url query.
type paramBuilder struct {
	sb strings.Builder
}

func newParamBuilder(prefix string) *paramBuilder {
	b := &paramBuilder{}
	b.sb.WriteString(prefix)
	return b
}

func (b *paramBuilder) append(name, value string) error {
	if !utf8.ValidString(value) {
		return types.NewFatalError(errors.NotValidf("%s value %q in %s", name, value, utf8Charset))
	}
	if s := b.sb.String(); len(s) > 0 && s[len(s)-1] != '?' {
		b.sb.WriteByte('&')
	}
	b.sb.WriteString(name)
	b.sb.WriteByte('=')
	b.sb.WriteString(url.QueryEscape(value))
	return nil
}

func (b *paramBuilder) appendInt(name string, value int64) error {
	return b.append(name, strconv.FormatInt(value, 10))
}

func (b *paramBuilder) newline() {
	b.sb.WriteByte('\n')
}

func (b *paramBuilder) String() string {
	return b.sb.String()
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// batchField is an ack_batch_ field as received. name may differ from
// BatchName+id, e.g. ack_batch_05.
type batchField struct {
	id   int64
	name string
}

// parseQuery splits a flat query string into params. It also returns the
// ack_batch_ fields in the order their batch id first appears.
// Fields without '=' or with an undecodable value are skipped.
func parseQuery(query string) (types.Params, []batchField) {
	params := types.Params{}
	fields := make([]batchField, 0)
	seen := make(map[int64]bool)

	for _, field := range strings.Split(query, "&") {
		name, rawValue, found := strings.Cut(field, "=")
		if !found || name == "" {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			log.Debugf("skip ack field %s: %v", name, err)
			continue
		}
		params.Set(name, value)

		if id, ok := batchIDOf(name); ok && !seen[id] {
			seen[id] = true
			fields = append(fields, batchField{id, name})
		}
	}
	return params, fields
}

func batchIDOf(name string) (int64, bool) {
	suffix, found := strings.CutPrefix(name, BatchName)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil {
		log.Debugf("skip ack field %s: batch id is not a number", name)
		return 0, false
	}
	return id, true
}

func paramString(params types.Params, name string) string {
	s, _ := params.GetString(name)
	return s
}

// paramInt reads a decimal number, 0 when absent or unparseable.
func paramInt(params types.Params, name string) int64 {
	s, exists := params.GetString(name)
	if !exists {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
