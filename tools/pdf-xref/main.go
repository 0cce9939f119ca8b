// seehuhn.de/go/cos - PDF document objects and storage
// Copyright (C) 2025  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Pdf-xref shows the cross-reference structure of PDF files, and can
// rewrite or update files.
//
// Without options, the revisions of each file are listed.  Use -o to write
// a new file, -update to append an incremental update to the input file in
// place, and -gc to remove unused objects before writing.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"seehuhn.de/go/cos"
	"seehuhn.de/go/cos/tools/internal/buildinfo"
	"seehuhn.de/go/cos/tools/internal/profile"
	"seehuhn.de/go/cos/xrefcache"
)

type options struct {
	out        string
	mode       string
	format     string
	compress   bool
	objStreams bool
	gc         bool
	update     bool
	cache      string
	verbose    bool
}

func main() {
	opt := &options{}
	flag.StringVar(&opt.out, "o", "", "write the document to this file")
	flag.StringVar(&opt.mode, "mode", "auto", "save mode: auto, incremental, full or compact")
	flag.StringVar(&opt.format, "xref", "auto", "cross-reference format: auto, table or stream")
	flag.BoolVar(&opt.compress, "z", false, "compress cross-reference streams")
	flag.BoolVar(&opt.objStreams, "objstm", false, "store objects in object streams")
	flag.BoolVar(&opt.gc, "gc", false, "remove unreachable objects before writing")
	flag.BoolVar(&opt.update, "update", false, "append an incremental update to the input file")
	flag.StringVar(&opt.cache, "cache", "", "database file for caching cross-reference information")
	flag.BoolVar(&opt.verbose, "v", false, "show warnings and cross-reference entries")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write memory profile to `file`")
	version := flag.Bool("version", false, "show version information and exit")
	flag.Parse()

	if *version {
		fmt.Println(buildinfo.Short("pdf-xref"))
		return
	}
	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "error: no input files given")
		flag.Usage()
		os.Exit(1)
	}
	if (opt.out != "" || opt.update) && flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "error: -o and -update need exactly one input file")
		os.Exit(1)
	}

	err := run(opt, flag.Args(), *cpuprofile, *memprofile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(opt *options, files []string, cpuprofile, memprofile string) error {
	stop, err := profile.Start(cpuprofile, memprofile)
	if err != nil {
		return err
	}
	defer stop()

	saveOpt, err := opt.saveOptions()
	if err != nil {
		return err
	}

	level := slog.LevelError
	if opt.verbose {
		level = slog.LevelWarn
	}
	ropt := &cos.ReaderOptions{
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}
	if opt.cache != "" {
		c, err := xrefcache.Open(opt.cache)
		if err != nil {
			return err
		}
		defer c.Close()
		ropt.IndexCache = c
	}

	for _, fname := range files {
		var err error
		switch {
		case opt.update:
			err = updateFile(fname, opt, ropt, saveOpt)
		case opt.out != "":
			err = rewriteFile(fname, opt, ropt, saveOpt)
		default:
			err = showFile(os.Stdout, fname, opt, ropt)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", fname, err)
		}
	}
	return nil
}

func (opt *options) saveOptions() (*cos.SaveOptions, error) {
	res := &cos.SaveOptions{
		Compress:      opt.compress,
		ObjectStreams: opt.objStreams,
	}
	switch strings.ToLower(opt.mode) {
	case "auto":
		res.Mode = cos.SaveAuto
	case "incremental":
		res.Mode = cos.SaveIncremental
	case "full":
		res.Mode = cos.SaveFull
	case "compact":
		res.Mode = cos.SaveCompact
	default:
		return nil, fmt.Errorf("unknown save mode %q", opt.mode)
	}
	switch strings.ToLower(opt.format) {
	case "auto":
		res.Format = cos.XRefAuto
	case "table":
		res.Format = cos.XRefTable
	case "stream":
		res.Format = cos.XRefStream
	default:
		return nil, fmt.Errorf("unknown cross-reference format %q", opt.format)
	}
	return res, nil
}

func showFile(w io.Writer, fname string, opt *options, ropt *cos.ReaderOptions) error {
	doc, err := cos.OpenFile(fname, ropt)
	if err != nil {
		return err
	}
	defer doc.Close()

	fmt.Fprintf(w, "%s: PDF-%s, %d bytes\n", fname, doc.Version(), doc.Size())
	revs := doc.Revisions()
	for i, rev := range revs {
		fmt.Fprintf(w, "  revision %d: %s", len(revs)-i, rev.Format)
		if rev.Offset >= 0 {
			fmt.Fprintf(w, " at offset %d", rev.Offset)
		}
		if rev.XRefStm > 0 {
			fmt.Fprintf(w, ", /XRefStm %d", rev.XRefStm)
		}
		fmt.Fprintln(w)

		var ranges []string
		for _, r := range rev.Subsections {
			ranges = append(ranges, fmt.Sprintf("%d-%d", r[0], r[0]+r[1]-1))
		}
		fmt.Fprintf(w, "    objects %s\n", strings.Join(ranges, ", "))
		if rev.Trailer != nil {
			fmt.Fprintf(w, "    trailer %s\n", cos.Format(rev.Trailer))
		}
		if opt.verbose && i == 0 {
			// entries of older revisions may be shadowed
			for _, r := range rev.Subsections {
				for num := r[0]; num < r[0]+r[1]; num++ {
					entry, ok := doc.XRefEntry(num)
					if !ok {
						continue
					}
					fmt.Fprintf(w, "      %6d %s\n", num, describeEntry(entry))
				}
			}
		}
	}

	reachable := 0
	for range doc.Walk() {
		reachable++
	}
	fmt.Fprintf(w, "  %d reachable objects\n", reachable)

	if opt.verbose {
		var free []string
		for num, gen := range doc.FreeObjects() {
			free = append(free, fmt.Sprintf("%d/%d", num, gen))
		}
		if len(free) > 0 {
			fmt.Fprintf(w, "  free numbers %s\n", strings.Join(free, " "))
		}
	}

	if opt.verbose {
		for _, err := range doc.Warnings() {
			fmt.Fprintf(w, "  warning: %v\n", err)
		}
	}
	return nil
}

func describeEntry(entry cos.XRefEntry) string {
	switch entry.Type {
	case cos.EntryInUse:
		return fmt.Sprintf("in use, gen %d, offset %d", entry.Generation, entry.Offset)
	case cos.EntryCompressed:
		return fmt.Sprintf("compressed, stream %d index %d", entry.Stream, entry.Index)
	default:
		return fmt.Sprintf("free, next %d, gen %d", entry.NextFree, entry.Generation)
	}
}

func rewriteFile(fname string, opt *options, ropt *cos.ReaderOptions, saveOpt *cos.SaveOptions) error {
	if _, err := os.Stat(opt.out); !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("output file %q already exists", opt.out)
	}

	doc, err := cos.OpenFile(fname, ropt)
	if err != nil {
		return err
	}
	defer doc.Close()

	if opt.gc {
		mode := cos.GCFull
		if saveOpt.Mode == cos.SaveIncremental {
			mode = cos.GCIncremental
		}
		err = doc.CollectGarbage(mode)
		if err != nil {
			return err
		}
	}

	out, err := os.Create(opt.out)
	if err != nil {
		return err
	}
	err = doc.Save(out, saveOpt)
	if err != nil {
		out.Close()
		os.Remove(opt.out)
		return err
	}
	return out.Close()
}

func updateFile(fname string, opt *options, ropt *cos.ReaderOptions, saveOpt *cos.SaveOptions) error {
	f, err := os.OpenFile(fname, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}

	doc, err := cos.Open(f, fi.Size(), ropt)
	if err != nil {
		return err
	}
	if opt.gc {
		err = doc.CollectGarbage(cos.GCIncremental)
		if err != nil {
			return err
		}
	}

	// Touch the catalog, so that a new revision is written even if
	// garbage collection found nothing to do.
	catalog, err := doc.Catalog()
	if err != nil {
		return err
	}
	catalog.Set("Type", cos.Name("Catalog"))

	saveOpt.Mode = cos.SaveIncremental
	return doc.SaveInPlace(f, saveOpt)
}
