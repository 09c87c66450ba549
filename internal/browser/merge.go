package browser

import (
	"github.com/cespare/xxhash/v2"

	"github.com/openfrag/scout/internal/models"
)

// Merge deduplicates the three source result lists into the final display
// order: local results first, then surviving custom results, then
// master-derived results. Exactly one record survives per distinct address;
// a dropped duplicate contributes its source mark to the surviving copy.
//
// Priority: a local record always wins. A custom record that coincides with
// a local or master-derived record is dropped in favor of that copy.
func Merge(local, custom, master []models.ServerRecord) []models.ServerRecord {
	key := func(a models.Address) uint64 {
		return xxhash.Sum64String(a.String())
	}

	out := make([]models.ServerRecord, 0, len(local)+len(custom)+len(master))
	index := make(map[uint64]int, len(local)+len(custom)+len(master))

	masterKeys := make(map[uint64]struct{}, len(master))
	for i := range master {
		masterKeys[key(master[i].Address)] = struct{}{}
	}

	for i := range local {
		k := key(local[i].Address)
		if at, dup := index[k]; dup {
			out[at].Sources |= models.SourceLocal
			continue
		}

		rec := local[i]
		rec.Sources |= models.SourceLocal
		index[k] = len(out)
		out = append(out, rec)
	}

	// Custom entries that duplicate a master result are dropped here and
	// tagged onto the master copy below.
	droppedCustom := make(map[uint64]struct{})
	for i := range custom {
		k := key(custom[i].Address)
		if at, dup := index[k]; dup {
			out[at].Sources |= models.SourceCustom
			continue
		}
		if _, inMaster := masterKeys[k]; inMaster {
			droppedCustom[k] = struct{}{}
			continue
		}

		rec := custom[i]
		rec.Sources |= models.SourceCustom
		index[k] = len(out)
		out = append(out, rec)
	}

	for i := range master {
		k := key(master[i].Address)
		if at, dup := index[k]; dup {
			out[at].Sources |= models.SourceMaster
			continue
		}

		rec := master[i]
		rec.Sources |= models.SourceMaster
		if _, wasCustom := droppedCustom[k]; wasCustom {
			rec.Sources |= models.SourceCustom
		}
		index[k] = len(out)
		out = append(out, rec)
	}

	return out
}
