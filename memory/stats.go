package memory

import (
	"sort"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/memutils"
)

// TotalStatistics sums Statistics over every heap
func (a *Allocator) TotalStatistics() memutils.Statistics {
	var total memutils.Statistics
	for _, heapStats := range a.Statistics() {
		total.AddStatistics(&heapStats)
	}
	return total
}

func printStatistics(json *jwriter.ObjectState, stats memutils.Statistics) {
	json.Name("BlockCount").Int(stats.BlockCount)
	json.Name("BlockBytes").Int(stats.BlockBytes)
	json.Name("AllocationCount").Int(stats.AllocationCount)
	json.Name("AllocationBytes").Int(stats.AllocationBytes)
}

// BuildStatsString renders the allocator's heaps, memory types and live arenas as JSON
func (a *Allocator) BuildStatsString() string {
	writer := jwriter.NewWriter()
	root := writer.Object()

	general := root.Name("General").Object()
	properties := a.context.DeviceProperties()
	if properties != nil {
		general.Name("DriverName").String(properties.DriverName)
		general.Name("DeviceType").String(properties.DriverType.String())
	}
	general.Name("MemoryHeapCount").Int(a.context.MemoryHeapCount())
	general.Name("MemoryTypeCount").Int(a.context.MemoryTypeCount())
	general.End()

	total := root.Name("Total").Object()
	printStatistics(&total, a.TotalStatistics())
	total.End()

	heapStats := a.Statistics()
	heaps := root.Name("MemoryHeaps").Array()
	for heapIndex, stats := range heapStats {
		heapProperties := a.context.MemoryHeapProperties(heapIndex)

		heap := heaps.Object()
		heap.Name("Index").Int(heapIndex)
		heap.Name("Size").Int(heapProperties.Size)
		heap.Name("Flags").String(heapProperties.Flags.String())
		if a.heapLimits[heapIndex] > 0 {
			heap.Name("Limit").Int(a.heapLimits[heapIndex])
		}

		statsObj := heap.Name("Stats").Object()
		printStatistics(&statsObj, stats)
		statsObj.End()

		types := heap.Name("MemoryTypes").Array()
		for typeIndex := 0; typeIndex < a.context.MemoryTypeCount(); typeIndex++ {
			if a.context.MemoryTypeIndexToHeapIndex(typeIndex) != heapIndex {
				continue
			}

			memoryType := types.Object()
			memoryType.Name("Index").Int(typeIndex)
			memoryType.Name("PropertyFlags").String(a.context.MemoryTypeProperties(typeIndex).PropertyFlags.String())
			memoryType.End()
		}
		types.End()

		heap.End()
	}
	heaps.End()

	handles := a.arenas.Handles()
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].Index < handles[j].Index
	})

	arenas := root.Name("Arenas").Array()
	for _, handle := range handles {
		arena, ok := a.arenas.Get(handle)
		if !ok {
			continue
		}

		obj := arenas.Object()
		obj.Name("Handle").String(arena.handle.String())
		obj.Name("Size").Int(arena.size)
		obj.Name("MemoryTypeIndex").Int(arena.memoryTypeIndex)
		obj.Name("Mapped").Bool(arena.IsMapped())
		obj.End()
	}
	arenas.End()

	root.End()
	return string(writer.Bytes())
}
