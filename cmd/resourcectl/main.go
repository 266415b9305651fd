// resourcectl inspects a mounted content root from the command line: list
// the manifest entries a bundle archive carries, or read a single resource's
// bytes straight off whichever provider handles its path. It mounts exactly
// one provider per invocation and never constructs a typed factory — an
// inspector has no resource types to register, only the mount contract.
//
// © 2025 resourcecore authors. MIT License.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/Voskan/resourcecore/pkg/provider"
	"github.com/Voskan/resourcecore/pkg/rpath"

	_ "github.com/Voskan/resourcecore/pkg/provider/archiveprovider"
	_ "github.com/Voskan/resourcecore/pkg/provider/fileprovider"
	_ "github.com/Voskan/resourcecore/pkg/provider/httpprovider"
	_ "github.com/Voskan/resourcecore/pkg/provider/mutableprovider"
	_ "github.com/Voskan/resourcecore/pkg/provider/zipprovider"
)

var version = "dev"

type options struct {
	mount   string
	get     string
	list    bool
	head    int
	showVer bool
}

func parseFlags() *options {
	opts := &options{}
	pflag.StringVarP(&opts.mount, "mount", "m", "", "mount URI (scheme://location/path; bare paths default to file://)")
	pflag.StringVarP(&opts.get, "get", "g", "", "read a single resource path and print its size and a hex preview")
	pflag.BoolVarP(&opts.list, "list", "l", false, "list every entry in the mount's manifest, if it has one")
	pflag.IntVar(&opts.head, "head", 64, "bytes of hex preview to print for --get")
	pflag.BoolVar(&opts.showVer, "version", false, "print version and exit")
	pflag.Parse()
	return opts
}

func main() {
	opts := parseFlags()
	if opts.showVer {
		fmt.Println(version)
		return
	}
	if opts.mount == "" {
		fatal(fmt.Errorf("resourcectl: --mount is required"))
	}

	ctx := context.Background()
	archive, err := provider.Mount(ctx, opts.mount, nil)
	if err != nil {
		fatal(fmt.Errorf("mount %q: %w", opts.mount, err))
	}
	defer archive.Close()

	if opts.list {
		if err := listManifest(archive); err != nil {
			fatal(err)
		}
	}

	if opts.get != "" {
		if err := getResource(ctx, archive, opts.get, opts.head); err != nil {
			fatal(err)
		}
	}

	if !opts.list && opts.get == "" {
		fatal(fmt.Errorf("resourcectl: nothing to do — pass --list and/or --get"))
	}
}

func listManifest(archive provider.Archive) error {
	m := archive.Manifest()
	if m == nil {
		fmt.Println("(mount carries no manifest)")
		return nil
	}
	entries := m.Entries()
	fmt.Printf("%d manifest entries\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  hash=%016x flags=%d deps=%d\n", e.UrlHash, e.Flags, len(e.Dependants))
	}
	return nil
}

func getResource(ctx context.Context, archive provider.Archive, path string, head int) error {
	cpath, hash := rpath.CanonicalizeAndHash(path)
	size, err := archive.GetFileSize(ctx, hash, cpath)
	if err != nil {
		return fmt.Errorf("size %q: %w", path, err)
	}
	buf, err := archive.ReadFile(ctx, hash, cpath)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	fmt.Printf("%s: %d bytes (hash %016x)\n", cpath, size, hash)
	if head > len(buf) {
		head = len(buf)
	}
	fmt.Println(hex.Dump(buf[:head]))
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "resourcectl:", err)
	os.Exit(1)
}
