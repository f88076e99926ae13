package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/QuangTung97/zkmem"
)

const lockParent = "/lock"

func newLockTestKeeper(t *testing.T) *zkmem.TestKeeper {
	k, err := zkmem.New("", 1*time.Second)
	if err != nil {
		panic(err)
	}
	t.Cleanup(k.Close)

	done := make(chan error, 1)
	err = k.Create(lockParent, nil, 0, nil,
		func(resp zkmem.CreateResponse, err error) {
			done <- err
		},
	)
	if err != nil {
		panic(err)
	}
	if err := <-done; err != nil {
		panic(err)
	}
	return k
}

func listChildren(k *zkmem.TestKeeper, path string) []string {
	ch := make(chan []string, 1)
	err := k.Children(path, func(resp zkmem.ChildrenResponse, err error) {
		ch <- resp.Children
	})
	if err != nil {
		panic(err)
	}
	return <-ch
}

func TestLock_SingleContender(t *testing.T) {
	k := newLockTestKeeper(t)

	granted := make(chan string, 1)
	l := NewLock(k, lockParent, "node01", func(l *Lock) {
		granted <- "node01"
	})

	assert.Equal(t, nil, l.Start())
	assert.Equal(t, "node01", <-granted)

	assert.Equal(t, []string{"node:node01-0000000000"}, listChildren(k, lockParent))

	assert.Equal(t, nil, l.Release())
	assert.Equal(t, []string(nil), listChildren(k, lockParent))
}

func TestLock_ReleaseWithoutHolding(t *testing.T) {
	k := newLockTestKeeper(t)

	l := NewLock(k, lockParent, "node01", func(l *Lock) {})
	err := l.Release()
	assert.NotEqual(t, nil, err)
	assert.Equal(t, "concurrency: lock is not held", err.Error())
}

func TestLock_Contention(t *testing.T) {
	k := newLockTestKeeper(t)

	granted := make(chan string, 4)

	l1 := NewLock(k, lockParent, "node01", func(l *Lock) {
		granted <- "node01"
	})
	l2 := NewLock(k, lockParent, "node02", func(l *Lock) {
		granted <- "node02"
	})
	l3 := NewLock(k, lockParent, "node03", func(l *Lock) {
		granted <- "node03"
	})

	assert.Equal(t, nil, l1.Start())
	assert.Equal(t, "node01", <-granted)

	assert.Equal(t, nil, l2.Start())
	assert.Equal(t, nil, l3.Start())

	// wait for both contenders to register their lock nodes
	assert.Eventually(t, func() bool {
		return len(listChildren(k, lockParent)) == 3
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, len(granted))

	assert.Equal(t, nil, l1.Release())
	assert.Equal(t, "node02", <-granted)
	assert.Equal(t, 0, len(granted))

	assert.Equal(t, nil, l2.Release())
	assert.Equal(t, "node03", <-granted)

	assert.Equal(t, nil, l3.Release())
	assert.Equal(t, []string(nil), listChildren(k, lockParent))
}
