package sysinfo

import (
	"bufio"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"sync"
)

// lookupUser allows tests to stub user database lookups.
var lookupUser = user.LookupId

// Resolver maps UIDs to display names, caching results. Resolution may change
// over a process lifetime (account created after first sighting), so Name
// retries UIDs that previously fell back.
type Resolver struct {
	mu    sync.Mutex
	names map[int]string
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{names: make(map[int]string)}
}

// Name resolves one UID to a username, falling back to "uid-<n>".
func (r *Resolver) Name(uid int) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if name, ok := r.names[uid]; ok {
		return name
	}
	u, err := lookupUser(strconv.Itoa(uid))
	if err != nil || u.Username == "" {
		return fmt.Sprintf("uid-%d", uid)
	}
	r.names[uid] = u.Username
	return u.Username
}

// MemInfo returns the MemTotal, MemFree, Buffers and Cached values from
// /proc/meminfo in kilobytes, and whether the read succeeded.
func MemInfo() ([4]int64, bool) {
	var out [4]int64
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return out, false
	}
	defer f.Close()

	want := map[string]int{"MemTotal:": 0, "MemFree:": 1, "Buffers:": 2, "Cached:": 3}
	found := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() && found < len(want) {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		idx, ok := want[fields[0]]
		if !ok {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[idx] = kb
		found++
	}
	return out, found == len(want)
}
