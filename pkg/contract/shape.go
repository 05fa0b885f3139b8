package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// InlineThresholdBytes is the serialized size at or above which a FULL result
// is offloaded to the artifact store instead of inlined.
const InlineThresholdBytes = 1_000_000

const (
	briefMaxChars    = 100
	standardMaxPairs = 10
	standardMaxChars = 1000
	valueMaxChars    = 100
)

// Offloader stores a payload out-of-band and returns an opaque handle plus
// the observation text describing it. Implemented by the artifact store.
type Offloader interface {
	Offload(data []byte, toolName, summary string) (artifactID, observation string, err error)
}

// Payload is the tagged variant over raw tool output. Each shape implements
// the brief/standard/full formatting rules so FromRawData never branches on
// runtime type inspection.
type Payload interface {
	// Brief renders a one-line summary.
	Brief() string
	// Standard renders a bounded preview.
	Standard() string
	// Full renders the complete pretty-printed payload.
	Full() string
	// Bytes returns the canonical serialized form used for size and hash.
	Bytes() []byte
}

// Classify wraps raw tool output in the matching Payload variant.
func Classify(raw any) Payload {
	switch v := raw.(type) {
	case nil:
		return scalarPayload{text: ""}
	case map[string]any:
		return mapPayload{m: v}
	case []any:
		return listPayload{items: v}
	case []byte:
		return blobPayload{data: v}
	case string:
		return scalarPayload{text: v}
	case fmt.Stringer:
		return scalarPayload{text: v.String()}
	default:
		// Structured values that are none of the above still serialize
		// cleanly; treat them through their JSON form.
		b, err := json.Marshal(v)
		if err != nil {
			return scalarPayload{text: fmt.Sprintf("%v", v)}
		}
		var m map[string]any
		if json.Unmarshal(b, &m) == nil {
			return mapPayload{m: m}
		}
		var l []any
		if json.Unmarshal(b, &l) == nil {
			return listPayload{items: l}
		}
		return scalarPayload{text: string(b)}
	}
}

// FromRawData shapes raw tool output into a ToolExecutionResult at the
// requested output level. Size and hash are computed for every result
// regardless of level. When the FULL form reaches the inline threshold and an
// offloader is configured, the payload moves to the artifact store and the
// observation reports the artifact ID instead.
func FromRawData(req *ToolInvocationRequest, raw any, level OutputLevel, off Offloader) *ToolExecutionResult {
	if !level.Valid() {
		level = OutputStandard
	}
	payload := Classify(raw)
	data := payload.Bytes()
	sum := sha256.Sum256(data)

	res := &ToolExecutionResult{
		ToolCallID:    req.ToolCallID,
		ToolName:      req.ToolName,
		OutputLevel:   level,
		Success:       true,
		DataSizeBytes: int64(len(data)),
		DataHash:      hex.EncodeToString(sum[:]),
		CachePolicy:   req.Policy(),
		CreatedAt:     time.Now(),
	}
	if ttl := res.CachePolicy.TTL(); ttl > 0 {
		res.ExpiresAt = res.CreatedAt.Add(ttl)
	}

	switch level {
	case OutputBrief:
		res.Observation = payload.Brief()
	case OutputStandard:
		res.Observation = payload.Standard()
	case OutputFull:
		if len(data) >= InlineThresholdBytes && off != nil {
			id, obs, err := off.Offload(data, req.ToolName, payload.Brief())
			if err == nil {
				res.ArtifactID = id
				res.Observation = obs
				return res
			}
			// Offload is best effort; fall back to inlining.
		}
		res.Observation = payload.Full()
	}
	return res
}

type mapPayload struct {
	m map[string]any
}

func (p mapPayload) Brief() string {
	// Prefer an explicit outcome field when the tool provides one.
	if v, ok := p.m["success"]; ok {
		return fmt.Sprintf("success=%v", v)
	}
	if v, ok := p.m["count"]; ok {
		return fmt.Sprintf("count=%v", v)
	}
	return truncate(compactJSON(p.m), briefMaxChars)
}

func (p mapPayload) Standard() string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	shown := len(keys)
	if shown > standardMaxPairs {
		shown = standardMaxPairs
	}
	for i := 0; i < shown; i++ {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", keys[i], truncate(renderValue(p.m[keys[i]]), valueMaxChars))
	}
	if len(keys) > shown {
		fmt.Fprintf(&b, "\n... (%d more fields)", len(keys)-shown)
	}
	return b.String()
}

func (p mapPayload) Full() string  { return prettyJSON(p.m) }
func (p mapPayload) Bytes() []byte { return mustJSON(p.m) }

type listPayload struct {
	items []any
}

func (p listPayload) Brief() string {
	return fmt.Sprintf("%d items", len(p.items))
}

func (p listPayload) Standard() string {
	if len(p.items) == 0 {
		return "0 items"
	}
	first := truncate(renderValue(p.items[0]), valueMaxChars)
	return fmt.Sprintf("%d items, first: %s", len(p.items), first)
}

func (p listPayload) Full() string  { return prettyJSON(p.items) }
func (p listPayload) Bytes() []byte { return mustJSON(p.items) }

type scalarPayload struct {
	text string
}

func (p scalarPayload) Brief() string    { return truncate(p.text, briefMaxChars) }
func (p scalarPayload) Standard() string { return truncate(p.text, standardMaxChars) }
func (p scalarPayload) Full() string     { return p.text }
func (p scalarPayload) Bytes() []byte    { return []byte(p.text) }

type blobPayload struct {
	data []byte
}

func (p blobPayload) Brief() string {
	return fmt.Sprintf("%d bytes", len(p.data))
}

func (p blobPayload) Standard() string {
	return truncate(string(p.data), standardMaxChars)
}

func (p blobPayload) Full() string  { return string(p.data) }
func (p blobPayload) Bytes() []byte { return p.data }

func renderValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return "null"
	default:
		return compactJSON(val)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func prettyJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return b
}
