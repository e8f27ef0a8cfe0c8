package schemas

import "encoding/json"

// -- Session Snapshot Schemas --
//
// The snapshot layout matches the runner's storage-state file so the same
// file can be handed to both the bootstrap and the test runner.

// CookieSameSite defines the SameSite attribute for cookies.
type CookieSameSite string

const (
	CookieSameSiteStrict CookieSameSite = "Strict"
	CookieSameSiteLax    CookieSameSite = "Lax"
	CookieSameSiteNone   CookieSameSite = "None"
)

// Cookie represents a browser cookie. Expires is a Unix timestamp in seconds; -1 marks a session cookie.
type Cookie struct {
	Name     string         `json:"name"`
	Value    string         `json:"value"`
	Domain   string         `json:"domain"`
	Path     string         `json:"path"`
	Expires  float64        `json:"expires"`
	HTTPOnly bool           `json:"httpOnly"`
	Secure   bool           `json:"secure"`
	SameSite CookieSameSite `json:"sameSite"`
}

// NameValue is a single storage entry.
type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// IndexedDBRecord is one object-store record. Key and Value hold JSON-serializable values.
type IndexedDBRecord struct {
	Key   json.RawMessage `json:"key,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// IndexedDBIndex describes an index of an object store.
type IndexedDBIndex struct {
	Name string `json:"name"`
	// KeyPath and KeyPathArray are exclusive; the array form is a compound key path.
	KeyPath      string   `json:"keyPath,omitempty"`
	KeyPathArray []string `json:"keyPathArray,omitempty"`
	MultiEntry   bool     `json:"multiEntry"`
	Unique       bool     `json:"unique"`
}

// IndexedDBStore is an object store and its records.
type IndexedDBStore struct {
	Name          string            `json:"name"`
	KeyPath       string            `json:"keyPath,omitempty"`
	KeyPathArray  []string          `json:"keyPathArray,omitempty"`
	AutoIncrement bool              `json:"autoIncrement"`
	Indexes       []IndexedDBIndex  `json:"indexes"`
	Records       []IndexedDBRecord `json:"records"`
}

// IndexedDBDatabase is one database of an origin.
type IndexedDBDatabase struct {
	Name    string           `json:"name"`
	Version int64            `json:"version"`
	Stores  []IndexedDBStore `json:"stores"`
}

// OriginState is the per-origin client storage captured with a snapshot.
type OriginState struct {
	Origin       string              `json:"origin"`
	LocalStorage []NameValue         `json:"localStorage"`
	IndexedDB    []IndexedDBDatabase `json:"indexedDB,omitempty"`
}

// StorageState is a serialized authenticated browsing state.
type StorageState struct {
	Cookies []Cookie      `json:"cookies"`
	Origins []OriginState `json:"origins"`
}

// HasIndexedDB reports whether the snapshot was taken with the extended capture.
func (s *StorageState) HasIndexedDB() bool {
	for _, o := range s.Origins {
		if len(o.IndexedDB) > 0 {
			return true
		}
	}
	return false
}

// CarryOrigins appends prev's origins that s does not record. A capture only
// sees the origins the browser could observe, so storage restored from prev
// for any other origin is kept.
func (s *StorageState) CarryOrigins(prev *StorageState) {
	if prev == nil {
		return
	}
	for _, o := range prev.Origins {
		if s.Origin(o.Origin) == nil {
			s.Origins = append(s.Origins, o)
		}
	}
}

// Origin returns the state recorded for origin, or nil.
func (s *StorageState) Origin(origin string) *OriginState {
	for i := range s.Origins {
		if s.Origins[i].Origin == origin {
			return &s.Origins[i]
		}
	}
	return nil
}
