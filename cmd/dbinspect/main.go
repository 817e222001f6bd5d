package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"regexp"
	"unicode/utf8"

	"bitbucket.org/kleinnic74/pinphotos/app"
	"bitbucket.org/kleinnic74/pinphotos/library/boltstore"

	bolt "go.etcd.io/bbolt"
)

var (
	libDir string

	bucket string

	keyAcceptor = func(string) bool { return true }

	exe command

	args []string

	printKey   bool
	printValue bool
	keyFilter  string
	asJSON     bool

	commands = []command{
		{"buckets", listBuckets, func() *flag.FlagSet {
			flags := flag.NewFlagSet("buckets", flag.ExitOnError)
			flags.StringVar(&bucket, "b", "", "Bucket to inspect")
			return flags
		}, true},
		{"entries", listEntries, func() *flag.FlagSet {
			cmdEntries := flag.NewFlagSet("entries", flag.ExitOnError)
			cmdEntries.StringVar(&bucket, "b", "pins", "Bucket to inspect")
			cmdEntries.BoolVar(&printKey, "k", false, "Output keys")
			cmdEntries.BoolVar(&printValue, "v", false, "Output value")
			cmdEntries.StringVar(&keyFilter, "kf", "", "Key regex filter")
			return cmdEntries
		}, true},
		{"check", checkStore, func() *flag.FlagSet {
			cmdCheck := flag.NewFlagSet("check", flag.ExitOnError)
			cmdCheck.BoolVar(&asJSON, "json", false, "Output report as JSON")
			return cmdCheck
		}, true},
		{"deleteBucket", deleteBucket, func() *flag.FlagSet { return nil }, false},
	}
)

func getCommand(args []string) (command, *flag.FlagSet, error) {
	if len(args) == 0 {
		return commands[0], commands[0].flags(), nil
	}
	for i := range commands {
		if args[0] == commands[i].name {
			return commands[i], commands[i].flags(), nil
		}
	}
	return command{}, nil, fmt.Errorf("No such command: %s", args[0])
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [command] [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "[command] is one of\n")
		for _, c := range commands {
			fmt.Fprintf(os.Stderr, "\t%s\n", c.name)
		}
		flag.PrintDefaults()
	}
	flag.StringVar(&libDir, "l", app.DefaultOptions().LibDir, "Path to pin library")

	flag.Parse()

	var err error
	var flags *flag.FlagSet
	exe, flags, err = getCommand(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		flag.Usage()
		os.Exit(1)
	}
	if flag.NArg() > 0 {
		args = flag.Args()[1:]
	}
	if flags != nil {
		flags.Parse(args)
		args = flags.Args()
	}
}

type cmdFunc func(*bolt.Tx) error

type flagSetFunc func() *flag.FlagSet
type command struct {
	name     string
	run      cmdFunc
	flags    flagSetFunc
	readonly bool
}

func listBuckets(tx *bolt.Tx) error {
	if bucket != "" {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return fmt.Errorf("No such bucket: %s", bucket)
		}
		return b.ForEach(func(k, v []byte) error {
			if v == nil {
				fmt.Fprintf(os.Stdout, "%s\t%d\n", string(k), b.Bucket(k).Stats().KeyN)
			}
			return nil
		})
	}
	return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
		fmt.Fprintf(os.Stdout, "%s\t%d\n", string(name), b.Stats().KeyN)
		return nil
	})
}

// deleteBucket drops the nested photo buckets given as arguments, the
// photo references and contents are left for check to report
func deleteBucket(tx *bolt.Tx) (err error) {
	photos := tx.Bucket([]byte("photos"))
	for _, b := range args {
		fmt.Fprintf(os.Stderr, "Deleting photos of pin %s\n", b)
		if err = photos.DeleteBucket([]byte(b)); err != nil {
			return
		}
	}
	return
}

func checkStore(tx *bolt.Tx) error {
	report, err := boltstore.Verify(tx)
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Printf("  %d pins\n", report.Pins)
	fmt.Printf("  %d photos\n", report.Photos)
	fmt.Printf("  %d bytes of content\n", report.ContentBytes)
	for _, p := range report.Problems {
		fmt.Printf("  ! %s\n", p)
	}
	if !report.OK() {
		return fmt.Errorf("%d problems found", len(report.Problems))
	}
	return nil
}

type stats struct {
	count      int
	badKeys    int
	zeroValues int
	bytes      int
}

func (s stats) Add(sub stats) (out stats) {
	out.badKeys = s.badKeys + sub.badKeys
	out.count = s.count + sub.count
	out.zeroValues = s.zeroValues + sub.zeroValues
	out.bytes = s.bytes + sub.bytes
	return
}

func listEntries(tx *bolt.Tx) error {
	if keyFilter != "" {
		keyRE, err := regexp.Compile(keyFilter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Bad key filter RE: %s\n", err)
			os.Exit(2)
		}
		keyAcceptor = keyRE.MatchString
	}

	b := tx.Bucket([]byte(bucket))
	if b == nil {
		return fmt.Errorf("No such bucket: %s", bucket)
	}
	var s stats
	defer func() {
		fmt.Printf("  %d entries\n", s.count)
		fmt.Printf("  %d bad keys\n", s.badKeys)
		fmt.Printf("  %d zero values\n", s.zeroValues)
		fmt.Printf("  %d bytes\n", s.bytes)
	}()
	subStats, err := walkBucket(b)
	s = s.Add(subStats)
	return err
}

func walkBucket(b *bolt.Bucket) (s stats, err error) {
	err = b.ForEach(func(k, v []byte) error {
		key := formatKey(k)
		if !keyAcceptor(key) {
			return nil
		}
		if v == nil {
			// Nested photo bucket of a pin
			if printKey {
				fmt.Fprintf(os.Stdout, "%s/\n", key)
			}
			subStats, err := walkBucket(b.Bucket(k))
			if err != nil {
				return err
			}
			s = s.Add(subStats)
			return nil
		}
		s.count++
		s.bytes += len(v)
		if len(k) == 0 {
			s.badKeys++
		}
		if len(v) == 0 {
			s.zeroValues++
		}
		var line bytes.Buffer
		if printKey {
			line.WriteString(key)
		}
		if printValue {
			if line.Len() > 0 {
				line.WriteString(":")
			}
			line.WriteString(formatValue(v))
		}
		if line.Len() > 0 {
			fmt.Fprintln(os.Stdout, line.String())
		}
		return nil
	})
	return
}

// formatKey renders sequence keys as numbers and IDs as text
func formatKey(k []byte) string {
	if len(k) == 8 && (k[0] == 0 || !utf8.Valid(k)) {
		return fmt.Sprintf("#%d", binary.BigEndian.Uint64(k))
	}
	if n := len(k); n > 8 && k[n-8] == 0 {
		// pin ID followed by a sequence key
		return fmt.Sprintf("%s#%d", k[:n-8], binary.BigEndian.Uint64(k[n-8:]))
	}
	return string(k)
}

func formatValue(v []byte) string {
	if json.Valid(v) {
		return string(v)
	}
	if len(v) == 8 {
		return formatKey(v)
	}
	if n := len(v); n > 8 && v[n-8] == 0 {
		return formatKey(v)
	}
	return fmt.Sprintf("<%d bytes>", len(v))
}

func main() {
	var err error
	var db *bolt.DB
	dbPath := app.DatabasePath(libDir)
	if db, err = bolt.Open(dbPath, 0600, &bolt.Options{ReadOnly: exe.readonly}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open Bolt DB at %s: %s\n", dbPath, err)
		os.Exit(1)
	}
	defer db.Close()

	if exe.readonly {
		err = db.View(exe.run)
	} else {
		err = db.Update(exe.run)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error while executing: %s\n", err)
		os.Exit(1)
	}
}
