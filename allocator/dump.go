package allocator

import (
	"log/slog"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// PrintDetailedMap writes the layout of every live block into json.
func (a *Allocator) PrintDetailedMap(json jwriter.ObjectState) {
	stats := a.Stats()
	json.Name("totalBlocks").Int(stats.Blocks)
	json.Name("totalPages").Int(stats.Pages)
	json.Name("allocatedBytes").Int(int(stats.AllocatedBytes))
	json.Name("freeBytes").Int(int(stats.FreeBytes))

	blocks := json.Name("blocks").Array()
	for b := a.head; b != nil; b = b.next {
		obj := blocks.Object()
		obj.Name("id").Int(int(b.id))
		obj.Name("pages").Int(int(b.footer.pages))

		chunks := obj.Name("chunks").Array()
		for c := b.firstChunk(); !c.isEnd(); c = c.next() {
			b.checkCursor(c)
			item := chunks.Object()
			item.Name("offset").Int(b.offsetOf(c))
			item.Name("size").Int(int(c.dataSize()))
			item.Name("allocated").Bool(c.isAllocated())
			item.End()
		}
		chunks.End()

		obj.End()
	}
	blocks.End()
}

// DebugLogAllocations logs one line per allocated chunk.
func (a *Allocator) DebugLogAllocations(log *slog.Logger) {
	a.walkChunks(func(b *block, c *chunk) bool {
		if c.isAllocated() {
			log.Debug("allocation",
				slog.Uint64("block", b.id),
				slog.Int("offset", b.offsetOf(c)),
				slog.Int("size", int(c.dataSize())))
		}
		return true
	})
}
