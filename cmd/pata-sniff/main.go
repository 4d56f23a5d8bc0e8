// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pata-sniff is an interactive shell driving a PATA bus sniffer.
//
// Usage: pata-sniff [OPTIONS]
//
// Example:
//
//	$> pata-sniff -dir /data/pata
//	pata> connect
//	Sniffer device found: VID_0x04b4&PID_0x0101 USB 2.0 REV 1.0
//	pata> start pio2
//	File opened: /data/pata/capturing-2025.03.07-14.05.09.sniff
//	Samples collected: 0, error count: 0
//	pata> stop
//	Samples collected: 1024, error count: 0
//	Completed.
//	pata> decode /data/pata/capturing-2025.03.07-14.05.09.sniff
//	00000000: [ec|.] >> COMMAND (IDENTIFY DEVICE)
//	[...]
//	pata> quit
package main // import "github.com/go-lpc/pata/cmd/pata-sniff"

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-lpc/pata"
	"github.com/go-lpc/pata/ata"
	"github.com/go-lpc/pata/sniff"
	"github.com/go-lpc/pata/sniffer"
	"github.com/go-lpc/pata/trace"
	"github.com/peterh/liner"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

func main() {
	log.SetPrefix("pata-sniff: ")
	log.SetFlags(0)

	var (
		dir     = flag.String("dir", ".", "output directory for sample files")
		cmds    = flag.String("cmds", "", "path to a CODE=NAME file of ATA command names")
		verbose = flag.Bool("v", false, "enable verbose USB logging")
	)

	flag.Usage = func() {
		fmt.Printf(`pata-sniff is an interactive shell driving a PATA bus sniffer.

Usage: pata-sniff [OPTIONS]

Example:

 $> pata-sniff -dir /data/pata
 pata> connect
 pata> start pio2
 pata> stop
 pata> quit

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	sniffer.SetVerbose(*verbose)

	names := ata.DefaultCommands()
	if *cmds != "" {
		var err error
		names, err = ata.ReadCommandsFile(*cmds)
		if err != nil {
			log.Fatalf("could not load ATA commands: %+v", err)
		}
	}

	sh := newShell(os.Stdout, *dir, names, term.IsTerminal(int(os.Stdout.Fd())))
	defer sh.close()

	err := prompt(sh)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

func prompt(sh *shell) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(complete)

	hist := histFile()
	if f, err := os.Open(hist); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		f, err := os.Create(hist)
		if err != nil {
			log.Printf("could not save history: %+v", err)
			return
		}
		defer f.Close()
		_, _ = line.WriteHistory(f)
	}()

	for {
		in, err := line.Prompt("pata> ")
		switch {
		case errors.Is(err, liner.ErrPromptAborted):
			continue
		case errors.Is(err, io.EOF):
			_, err = sh.exec("quit")
			return err
		case err != nil:
			return fmt.Errorf("could not read command: %w", err)
		}

		in = strings.TrimSpace(in)
		if in == "" {
			continue
		}
		line.AppendHistory(in)

		quit, err := sh.exec(in)
		if err != nil {
			sh.msg.Printf("error: %v", err)
		}
		if quit {
			return nil
		}
	}
}

func histFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pata_history"
	}
	return filepath.Join(home, ".pata_history")
}

type command struct {
	args string
	help string
	run  func(sh *shell, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"connect": {"", "connect to the sniffer device", (*shell).connect},
		"start":   {"[PIOn|N]", "start a capture with a PIO preset or a clock divider", (*shell).start},
		"stop":    {"", "stop the running capture", (*shell).stop},
		"status":  {"", "display the device and capture status", (*shell).status},
		"decode":  {"FILE", "decode and display a sample file", (*shell).decode},
		"dir":     {"[DIR]", "display or change the output directory", (*shell).chdir},
		"presets": {"", "list the PIO timing presets", (*shell).presets},
		"help":    {"", "display this help message", (*shell).help},
		"version": {"", "display the version of pata-sniff", (*shell).version},
		"quit":    {"", "stop any capture and exit", nil},
	}
}

func complete(line string) []string {
	var o []string
	if strings.HasPrefix(line, "start ") {
		arg := strings.ToLower(strings.TrimPrefix(line, "start "))
		for _, p := range sniffer.Presets() {
			name := strings.ToLower(p.String()[:4])
			if strings.HasPrefix(name, arg) {
				o = append(o, "start "+name)
			}
		}
		return o
	}
	for name := range commands {
		if strings.HasPrefix(name, line) {
			o = append(o, name)
		}
	}
	sort.Strings(o)
	return o
}

type shell struct {
	w     io.Writer
	msg   *log.Logger
	sess  *sniffer.Session
	cmds  ata.Commands
	color bool
	now   func() time.Time

	mu  sync.Mutex
	dir string
	div uint16
	grp *errgroup.Group
}

func newShell(w io.Writer, dir string, cmds ata.Commands, color bool, opts ...sniffer.Option) *shell {
	msg := log.New(w, "", 0)
	sh := &shell{
		w:     w,
		msg:   msg,
		cmds:  cmds,
		color: color,
		now:   time.Now,
		dir:   dir,
		div:   sniffer.DefaultPreset.Divider(),
	}
	opts = append([]sniffer.Option{sniffer.WithLogger(msg)}, opts...)
	sh.sess = sniffer.New(sniffer.NewLogNotifier(msg), opts...)
	return sh
}

// exec runs the command line and reports whether the shell should exit.
func (sh *shell) exec(line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}

	name := strings.ToLower(args[0])
	if name == "quit" || name == "exit" {
		return true, sh.wait()
	}

	cmd, ok := commands[name]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try \"help\")", args[0])
	}
	return false, cmd.run(sh, args[1:])
}

func (sh *shell) close() {
	err := sh.wait()
	if err != nil {
		sh.msg.Printf("capture ended with error: %v", err)
	}
	err = sh.sess.Close()
	if err != nil {
		sh.msg.Printf("could not close sniffer: %v", err)
	}
}

func (sh *shell) connect(args []string) error {
	return sh.sess.Connect()
}

func (sh *shell) start(args []string) error {
	sh.mu.Lock()
	div := sh.div
	dir := sh.dir
	sh.mu.Unlock()

	if len(args) > 0 {
		var err error
		div, err = parseDivider(args[0])
		if err != nil {
			return err
		}
	}

	// collect the outcome of a previous capture that ended on its own.
	err := sh.wait()
	if err != nil {
		sh.msg.Printf("previous capture ended with error: %v", err)
	}

	path := sniffer.FileName(dir, sh.now())
	err = sh.sess.Start(path, div)
	if err != nil {
		return err
	}

	grp := new(errgroup.Group)
	grp.Go(sh.sess.Run)

	sh.mu.Lock()
	sh.div = div
	sh.grp = grp
	sh.mu.Unlock()
	return nil
}

func (sh *shell) stop(args []string) error {
	sh.mu.Lock()
	running := sh.grp != nil
	sh.mu.Unlock()
	if !running {
		return sniffer.ErrNotCapturing
	}
	return sh.wait()
}

// wait stops the running capture, if any, and waits for its completion.
func (sh *shell) wait() error {
	sh.mu.Lock()
	grp := sh.grp
	sh.grp = nil
	sh.mu.Unlock()

	if grp == nil {
		return nil
	}
	sh.sess.Stop()
	return grp.Wait()
}

func (sh *shell) status(args []string) error {
	sh.mu.Lock()
	dir := sh.dir
	div := sh.div
	sh.mu.Unlock()

	desc, ok := sh.sess.Descriptor()
	dev := "not connected"
	if ok {
		dev = desc.String()
	}

	sh.msg.Printf("device:  %s", dev)
	sh.msg.Printf("state:   %v", sh.sess.State())
	sh.msg.Printf("divider: %d (%.1f MHz)", div, sniffer.ClockHz(div)/1e6)
	sh.msg.Printf("dir:     %s", dir)
	if path := sh.sess.Path(); path != "" {
		sh.msg.Printf("file:    %s", path)
	}
	sh.msg.Printf("%v", sh.sess.Stats())
	return nil
}

func (sh *shell) decode(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: decode FILE")
	}

	f, err := sniff.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	return trace.Dump(sh.w, f.Reader(), sh.cmds, sh.color, nil)
}

func (sh *shell) chdir(args []string) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	switch len(args) {
	case 0:
		sh.msg.Printf("dir: %s", sh.dir)
		return nil
	case 1:
		fi, err := os.Stat(args[0])
		if err != nil {
			return fmt.Errorf("could not access output directory: %w", err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("%q is not a directory", args[0])
		}
		sh.dir = args[0]
		return nil
	}
	return fmt.Errorf("usage: dir [DIR]")
}

func (sh *shell) presets(args []string) error {
	for _, p := range sniffer.Presets() {
		sh.msg.Printf("%s: divider=%d (%.1f MHz)",
			p, p.Divider(), sniffer.ClockHz(p.Divider())/1e6,
		)
	}
	return nil
}

func (sh *shell) help(args []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		sh.msg.Printf("  %-18s %s", strings.TrimSpace(name+" "+cmd.args), cmd.help)
	}
	return nil
}

func (sh *shell) version(args []string) error {
	vers, sum := pata.Version()
	if vers == "" {
		vers = "(devel)"
	}
	sh.msg.Printf("pata-sniff %s %s", vers, sum)
	return nil
}

// parseDivider parses a PIO preset name or a clock divider value.
func parseDivider(arg string) (uint16, error) {
	if p, err := sniffer.ParsePreset(arg); err == nil {
		return p.Divider(), nil
	}
	v, err := strconv.ParseUint(arg, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid PIO preset or clock divider %q", arg)
	}
	if !sniffer.ValidDivider(uint16(v)) {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]",
			sniffer.ErrInvalidDivider, v, sniffer.MinDivider, sniffer.MaxDivider,
		)
	}
	return uint16(v), nil
}
