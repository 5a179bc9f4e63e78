// foash is a small interactive shell over a foatable.Table[string,
// string], for poking at insert/erase/rehash behavior by hand.
//
// Commands:
//
//	put <key> <value>   Insert an entry (an existing key keeps its value)
//	get <key>           Look up an entry
//	del <key>           Remove an entry
//	list [limit]        List entries (default 20)
//	len                 Number of live entries
//	buckets             Current bucket count
//	rehash <n>          Grow to hold at least n elements
//	bulk <count>        Insert N random key/value pairs
//	help                Show this help
//	exit / quit / q     Exit
package main

import (
	"fmt"
	"hash/maphash"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"pgregory.net/rand"

	"github.com/nikgalushko/foaswiss/foatable"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	seed := maphash.MakeSeed()
	hasher := func(k string) uint64 { return maphash.String(seed, k) }
	eq := func(a, b string) bool { return a == b }
	tbl := foatable.New[string, string](hasher, eq, 0)

	sh := &shell{tbl: tbl, rng: rand.New(1)}
	return sh.run()
}

type shell struct {
	tbl   *foatable.Table[string, string]
	rng   *rand.Rand
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".foash_history")
}

func (s *shell) run() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		s.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("foash - foatable shell")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("foash> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			s.saveHistory()
			return nil
		case "help", "?":
			s.printHelp()
		case "put":
			s.cmdPut(args)
		case "get":
			s.cmdGet(args)
		case "del", "delete":
			s.cmdDel(args)
		case "list", "ls":
			s.cmdList(args)
		case "len", "count":
			fmt.Printf("Live entries: %d\n", s.tbl.Len())
		case "buckets":
			fmt.Printf("Bucket count: %d\n", s.tbl.BucketCount())
		case "rehash":
			s.cmdRehash(args)
		case "bulk":
			s.cmdBulk(args)
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	s.saveHistory()
	return nil
}

func (s *shell) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			s.liner.WriteHistory(f)
			f.Close()
		}
	}
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "list", "ls", "len", "count",
		"buckets", "rehash", "bulk", "help", "exit", "quit", "q",
	}
	var out []string
	lower := strings.ToLower(line)
	for _, c := range commands {
		if strings.HasPrefix(c, lower) {
			out = append(out, c)
		}
	}
	return out
}

func (s *shell) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <key> <value>   Insert an entry (an existing key keeps its value)")
	fmt.Println("  get <key>           Look up an entry")
	fmt.Println("  del <key>           Remove an entry")
	fmt.Println("  list [limit]        List entries (default 20)")
	fmt.Println("  len                 Number of live entries")
	fmt.Println("  buckets             Current bucket count")
	fmt.Println("  rehash <n>          Grow to hold at least n elements")
	fmt.Println("  bulk <count>        Insert N random key/value pairs")
	fmt.Println("  help                Show this help")
	fmt.Println("  exit / quit / q     Exit")
}

func (s *shell) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Println("Usage: put <key> <value>")
		return
	}
	p, inserted := s.tbl.Insert(args[0], strings.Join(args[1:], " "))
	if inserted {
		fmt.Println("OK: inserted")
	} else {
		_, v := s.tbl.At(p)
		fmt.Printf("OK: key already present, value=%q (unchanged)\n", v)
	}
}

func (s *shell) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <key>")
		return
	}
	p, ok := s.tbl.Find(args[0])
	if !ok {
		fmt.Println("(not found)")
		return
	}
	_, v := s.tbl.At(p)
	fmt.Printf("%s = %q\n", args[0], v)
}

func (s *shell) cmdDel(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: del <key>")
		return
	}
	if s.tbl.Erase(args[0]) == 1 {
		fmt.Println("OK: deleted")
	} else {
		fmt.Println("OK: key did not exist")
	}
}

func (s *shell) cmdList(args []string) {
	limit := 20
	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("Error parsing limit: %v\n", err)
			return
		}
		limit = n
	}

	i := 0
	for k, v := range s.tbl.All() {
		if i >= limit {
			fmt.Printf("... (showing first %d, use 'list <limit>' for more)\n", limit)
			return
		}
		fmt.Printf("%3d. %s = %q\n", i+1, k, v)
		i++
	}
	if i == 0 {
		fmt.Println("(empty)")
	}
}

func (s *shell) cmdRehash(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: rehash <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		fmt.Println("Error: n must be a non-negative integer")
		return
	}
	before := s.tbl.BucketCount()
	s.tbl.Rehash(n)
	fmt.Printf("OK: bucket count %d -> %d\n", before, s.tbl.BucketCount())
}

func (s *shell) cmdBulk(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bulk <count>")
		return
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")
		return
	}
	const letters = "abcdefghijklmnopqrstuvwxyz"
	for i := 0; i < count; i++ {
		b := make([]byte, 8)
		s.rng.Read(b)
		for j := range b {
			b[j] = letters[int(b[j])%len(letters)]
		}
		s.tbl.Insert(string(b), strconv.Itoa(i))
	}
	fmt.Printf("OK: inserted %d random entries\n", count)
}
