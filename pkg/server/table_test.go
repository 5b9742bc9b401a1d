package server

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(port int, id uint8) RequestKey {
	return keyFor(&net.UDPAddr{IP: net.ParseIP("10.0.0.1"), Port: port}, id)
}

func TestTableInsertLookupRemove(t *testing.T) {
	tbl := newTxTable()
	w := &worker{}
	key := testKey(50000, 7)

	require.Nil(t, tbl.get(key))

	tbl.insertHandling(key, w)
	e := tbl.get(key)
	require.NotNil(t, e)
	assert.Equal(t, txHandling, e.state)
	assert.Same(t, w, e.w)
	assert.Equal(t, 1, tbl.len())

	tbl.remove(key)
	assert.Nil(t, tbl.get(key))
	assert.Equal(t, 0, tbl.len())
}

func TestTableOneEntryPerKey(t *testing.T) {
	tbl := newTxTable()
	key := testKey(50000, 7)

	w1, w2 := &worker{}, &worker{}
	tbl.insertHandling(key, w1)
	tbl.insertHandling(key, w2)

	assert.Equal(t, 1, tbl.len())
	assert.Same(t, w2, tbl.get(key).w)
}

func TestTableMarkReplied(t *testing.T) {
	tbl := newTxTable()
	key := testKey(50000, 7)
	w := &worker{}

	tbl.insertHandling(key, w)
	tbl.markReplied(key, w)
	assert.Equal(t, txReplied, tbl.get(key).state)

	// A stale worker must not flip an entry it no longer owns.
	w2 := &worker{}
	tbl.insertHandling(key, w2)
	tbl.markReplied(key, w)
	assert.Equal(t, txHandling, tbl.get(key).state)
}

func TestTablePurgeWorker(t *testing.T) {
	tbl := newTxTable()
	dead, alive := &worker{}, &worker{}

	tbl.insertHandling(testKey(50000, 1), dead)
	tbl.insertHandling(testKey(50000, 2), dead)
	tbl.insertHandling(testKey(50001, 1), alive)

	purged := tbl.purgeWorker(dead)
	assert.Equal(t, 2, purged)
	assert.Equal(t, 1, tbl.len())
	assert.NotNil(t, tbl.get(testKey(50001, 1)))
}

func TestKeyDistinguishesSourceTuple(t *testing.T) {
	a := testKey(50000, 7)
	b := testKey(50001, 7)
	c := testKey(50000, 8)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, testKey(50000, 7))
}
