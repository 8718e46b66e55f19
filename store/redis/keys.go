package redis

import "fmt"

// keys holds the Redis keys of one queue.
type keys struct {
	queue     string
	payload   string
	reserved  string
	attempted string
	created   string
}

func queueKeys(collection, q string) keys {
	base := collection + ":" + q
	return keys{
		queue:     base,
		payload:   base + ":payload",
		reserved:  base + ":reserved",
		attempted: base + ":attempted",
		created:   base + ":created",
	}
}

// seqKey is the counter job ids are drawn from.
func seqKey(collection string) string { return collection + ":seq" }

// formatID pads seq so lexicographic order matches numeric order.
func formatID(seq int64) string { return fmt.Sprintf("%020d", seq) }
