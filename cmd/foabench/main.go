package main

import (
	"fmt"
	"hash/maphash"
	"log"
	"os"

	cocroach "github.com/cockroachdb/swiss"
	crn4 "github.com/crn4/swiss"
	dolthub "github.com/dolthub/swiss"
	"github.com/spf13/pflag"

	"github.com/nikgalushko/foaswiss/cfoatable"
	"github.com/nikgalushko/foaswiss/foatable"
)

func main() {
	var (
		seed, size         uint64
		mapType            string
		keyType, valueType string
		configPath         string
	)
	pflag.Uint64Var(&seed, "seed", 1234, "Seed value for random generator")
	pflag.Uint64Var(&size, "dataset-size", 1_000_000, "Number of elements in the dataset")
	pflag.StringVar(&mapType, "map-type", "std", "std/cocroach/crn4/dolthub/foa/cfoa")
	pflag.StringVar(&keyType, "key-type", "int", "accepted but unused: keys are always int")
	pflag.StringVar(&valueType, "value-type", "int", "accepted but unused: values are always int")
	pflag.StringVar(&configPath, "config", "", "optional JWCC scenario file overriding the flags above")
	pflag.Parse()

	if configPath != "" {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatal(err)
		}
		cfg.applyTo(&seed, &size, &mapType, &keyType, &valueType)
	}

	hashSeed := maphash.MakeSeed()
	intHasher := func(k int) uint64 { return maphash.Comparable(hashSeed, k) }
	intEq := func(a, b int) bool { return a == b }

	build := func() Map[int, int] { return NewSimpleMap[int, int]() }
	switch mapType {
	case "cocroach":
		build = func() Map[int, int] { return NewCocroachMap[int, int]() }
	case "crn4":
		build = func() Map[int, int] { return NewCRN4Map[int, int]() }
	case "dolthub":
		build = func() Map[int, int] { return NewDolthubMap[int, int]() }
	case "foa":
		build = func() Map[int, int] { return NewFOAMap[int, int](intHasher, intEq) }
	case "cfoa":
		build = func() Map[int, int] { return NewCFOAMap[int, int](intHasher, intEq) }
	}
	b := New[int, int](size, seed, build)

	fmt.Fprintln(os.Stdout, "Running Map Benchmarks")

	b.Run()
}

type SimpleMap[K comparable, V any] struct {
	data map[K]V
}

func NewSimpleMap[K comparable, V any]() *SimpleMap[K, V] {
	return &SimpleMap[K, V]{data: make(map[K]V)}
}

func (m *SimpleMap[K, V]) Get(key K) (V, bool) {
	value, ok := m.data[key]
	return value, ok
}

func (m *SimpleMap[K, V]) Set(key K, value V) {
	m.data[key] = value
}

func (m *SimpleMap[K, V]) Delete(key K) {
	delete(m.data, key)
}

type Cocroach[K comparable, V any] struct {
	data *cocroach.Map[K, V]
}

func NewCocroachMap[K comparable, V any]() *Cocroach[K, V] {
	return &Cocroach[K, V]{data: cocroach.New[K, V](0)}
}

func (m *Cocroach[K, V]) Get(key K) (V, bool) {
	value, ok := m.data.Get(key)
	return value, ok
}

func (m *Cocroach[K, V]) Set(key K, value V) {
	m.data.Put(key, value)
}

func (m *Cocroach[K, V]) Delete(key K) {
	m.data.Delete(key)
}

type CRN4[K comparable, V any] struct {
	data *crn4.Map[K, V]
}

func NewCRN4Map[K comparable, V any]() *CRN4[K, V] {
	return &CRN4[K, V]{data: crn4.New[K, V](0)}
}

func (m *CRN4[K, V]) Get(key K) (V, bool) {
	value, ok := m.data.Get(key)
	return value, ok
}

func (m *CRN4[K, V]) Set(key K, value V) {
	m.data.Put(key, value)
}

func (m *CRN4[K, V]) Delete(key K) {
	m.data.Delete(key)
}

type Dolthub[K comparable, V any] struct {
	data *dolthub.Map[K, V]
}

func NewDolthubMap[K comparable, V any]() *Dolthub[K, V] {
	return &Dolthub[K, V]{data: dolthub.NewMap[K, V](0)}
}

func (m *Dolthub[K, V]) Get(key K) (V, bool) {
	value, ok := m.data.Get(key)
	return value, ok
}

func (m *Dolthub[K, V]) Set(key K, value V) {
	m.data.Put(key, value)
}

func (m *Dolthub[K, V]) Delete(key K) {
	m.data.Delete(key)
}

// FOA wraps the single-threaded port so it implements the same Map
// interface as the comparison libraries above.
type FOA[K comparable, V any] struct {
	data *foatable.Table[K, V]
}

func NewFOAMap[K comparable, V any](hasher foatable.Hasher[K], eq foatable.Equal[K]) *FOA[K, V] {
	return &FOA[K, V]{data: foatable.New[K, V](hasher, eq, 0, foatable.WithAvalanchingHash[K, V]())}
}

func (m *FOA[K, V]) Get(key K) (V, bool) {
	p, ok := m.data.Find(key)
	if !ok {
		var zero V
		return zero, false
	}
	_, v := m.data.At(p)
	return v, true
}

func (m *FOA[K, V]) Set(key K, value V) {
	m.data.Insert(key, value)
}

func (m *FOA[K, V]) Delete(key K) {
	m.data.Erase(key)
}

// CFOA wraps the concurrent port. The benchmark drives it
// single-threaded here purely to compare it on equal footing against
// the other maps; cfoatable's own tests exercise it concurrently.
type CFOA[K comparable, V any] struct {
	data *cfoatable.Table[K, V]
}

func NewCFOAMap[K comparable, V any](hasher cfoatable.Hasher[K], eq cfoatable.Equal[K]) *CFOA[K, V] {
	return &CFOA[K, V]{data: cfoatable.New[K, V](hasher, eq, 0, cfoatable.WithAvalanchingHash[K, V]())}
}

func (m *CFOA[K, V]) Get(key K) (V, bool) {
	var v V
	ok := m.data.Visit(key, func(value V) { v = value })
	return v, ok
}

func (m *CFOA[K, V]) Set(key K, value V) {
	m.data.Insert(key, value)
}

func (m *CFOA[K, V]) Delete(key K) {
	m.data.Erase(key)
}
