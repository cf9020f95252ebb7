package hashdb

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// namespace holds the records and secondary indexes of one namespace.
//
// Records live in a lock-free map so point reads and scans never contend
// with writers. The slot and posting bookkeeping is guarded by mu: writers
// update postings and the record under the write lock, Find reads under the
// read lock, so an equality lookup never observes a half-applied write.
type namespace struct {
	name          string
	indexedFields []string

	records *xsync.MapOf[string, Record]

	mu       sync.RWMutex
	nextSlot uint32
	slotOf   map[string]uint32
	keyOf    map[uint32]string
	postings map[string]map[string]*roaring.Bitmap
}

func newNamespace(name string, indexedFields []string) *namespace {
	ns := &namespace{
		name:          name,
		indexedFields: append([]string(nil), indexedFields...),
		records:       xsync.NewMapOf[string, Record](),
		slotOf:        make(map[string]uint32),
		keyOf:         make(map[uint32]string),
		postings:      make(map[string]map[string]*roaring.Bitmap, len(indexedFields)),
	}

	for _, field := range indexedFields {
		ns.postings[field] = make(map[string]*roaring.Bitmap)
	}

	return ns
}

func (ns *namespace) set(key string, rec Record) {
	rec = cloneRecord(rec)

	ns.mu.Lock()
	defer ns.mu.Unlock()

	slot, ok := ns.slotOf[key]
	if !ok {
		slot = ns.nextSlot
		ns.nextSlot++
		ns.slotOf[key] = slot
		ns.keyOf[slot] = key
	} else if old, exists := ns.records.Load(key); exists {
		ns.removePostings(slot, old)
	}

	ns.addPostings(slot, rec)
	ns.records.Store(key, rec)
}

func (ns *namespace) get(key string) (Record, error) {
	rec, ok := ns.records.Load(key)
	if !ok {
		return Record{}, fmt.Errorf("%w: %q in namespace %q", ErrKeyNotFound, key, ns.name)
	}

	return cloneRecord(rec), nil
}

func (ns *namespace) delete(key string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	slot, ok := ns.slotOf[key]
	if !ok {
		return
	}

	if old, exists := ns.records.Load(key); exists {
		ns.removePostings(slot, old)
	}

	ns.records.Delete(key)
	delete(ns.slotOf, key)
	delete(ns.keyOf, slot)
}

func (ns *namespace) keys() []string {
	var keys []string

	ns.records.Range(func(key string, _ Record) bool {
		keys = append(keys, key)

		return true
	})

	sort.Strings(keys)

	return keys
}

func (ns *namespace) find(field string, value any) ([]string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	posting, ok := ns.postings[field]
	if !ok {
		return nil, fmt.Errorf("%w: %q in namespace %q", ErrFieldNotIndexed, field, ns.name)
	}

	vk, ok := valueKey(value)
	if !ok {
		return nil, nil
	}

	bm, ok := posting[vk]
	if !ok {
		return nil, nil
	}

	keys := make([]string, 0, bm.GetCardinality())

	it := bm.Iterator()
	for it.HasNext() {
		if key, ok := ns.keyOf[it.Next()]; ok {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

func (ns *namespace) addPostings(slot uint32, rec Record) {
	for _, field := range ns.indexedFields {
		vk, ok := valueKey(rec.Fields[field])
		if !ok {
			continue
		}

		bm, ok := ns.postings[field][vk]
		if !ok {
			bm = roaring.New()
			ns.postings[field][vk] = bm
		}

		bm.Add(slot)
	}
}

func (ns *namespace) removePostings(slot uint32, rec Record) {
	for _, field := range ns.indexedFields {
		vk, ok := valueKey(rec.Fields[field])
		if !ok {
			continue
		}

		bm, ok := ns.postings[field][vk]
		if !ok {
			continue
		}

		bm.Remove(slot)

		if bm.IsEmpty() {
			delete(ns.postings[field], vk)
		}
	}
}

// valueKey maps a field value to its posting key. Integers and integral
// floats share one representation so lookups survive a JSON snapshot round
// trip, which widens every number to float64.
func valueKey(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return "s:" + v, true
	case bool:
		return "b:" + strconv.FormatBool(v), true
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10), true
	case int64:
		return "i:" + strconv.FormatInt(v, 10), true
	case uint:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint8:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint16:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return "i:" + strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return "i:" + strconv.FormatUint(v, 10), true
	case float32:
		return floatKey(float64(v)), true
	case float64:
		return floatKey(v), true
	case []byte:
		return "x:" + string(v), true
	default:
		return "", false
	}
}

func floatKey(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return "i:" + strconv.FormatInt(int64(f), 10)
	}

	return "f:" + strconv.FormatFloat(f, 'g', -1, 64)
}
