// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/devblok/triangle/shader"
	"github.com/devblok/triangle/utility/kar"
	log "github.com/sirupsen/logrus"
)

func init() {
	currentUserName = "unknown"
	if u, err := user.Current(); err == nil {
		currentUserName = u.Name
	}
}

var (
	currentUserName string
	author          = flag.String("author", "", "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the archive given")
	compress        = flag.String("c", "", "Compress the given file/folder")
	list            = flag.String("l", "", "List the contents of the archive given")
	shaders         = flag.Bool("shaders", false, "Bundle the built-in shader sources")
	dstFile         = flag.String("f", "out.kar", "Destination file, or directory when extracting")
	silent          = flag.Bool("s", false, "Silent")
)

func main() {
	flag.Parse()
	if *silent {
		log.SetLevel(log.WarnLevel)
	}

	ops := 0
	for _, op := range []string{*extract, *compress, *list} {
		if op != "" {
			ops++
		}
	}
	if *shaders {
		ops++
	}
	if ops > 1 {
		log.Fatal("only one operation at a time")
	}

	var err error
	switch {
	case *compress != "":
		err = compressFiles(*compress, *dstFile)
	case *extract != "":
		err = extractFiles(*extract, *dstFile)
	case *list != "":
		err = listFiles(*list)
	case *shaders:
		err = bundleShaders(*dstFile)
	default:
		flag.PrintDefaults()
	}
	if err != nil {
		log.WithError(err).Fatal("kar failed")
	}
}

func newBuilder() (*kar.Builder, error) {
	name := *author
	if name == "" {
		name = currentUserName
	}
	return kar.NewBuilder(kar.Header{
		Author:      name,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})
}

func writeArchive(b *kar.Builder, dstPath string) error {
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	written, err := b.WriteTo(dst)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"files": b.Len(),
		"bytes": written,
	}).Infof("Created %s", dstPath)
	return nil
}

// bundleShaders writes the sources shader.Embedded serves, to be edited
// and loaded back with TRIANGLE_SHADER_BUNDLE.
func bundleShaders(dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}
	karBuilder, err := newBuilder()
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	err = shader.WalkEmbedded(func(name string, r io.Reader) error {
		log.WithField("file", name).Debug("Added")
		return karBuilder.Add(name, r)
	})
	if err != nil {
		return err
	}
	return writeArchive(karBuilder, dstPath)
}

func compressFiles(src, dstPath string) error {
	if _, err := os.Stat(dstPath); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	var filesToCompress []string
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		filesToCompress = append(filesToCompress, path)
		return nil
	})
	if err != nil {
		return err
	}

	karBuilder, err := newBuilder()
	if err != nil {
		return err
	}
	defer karBuilder.Close()

	for _, ftc := range filesToCompress {
		if err := addFile(karBuilder, src, ftc); err != nil {
			return err
		}
	}

	return writeArchive(karBuilder, dstPath)
}

// addFile stores path under its name relative to root, so shader
// bundles resolve by plain file name.
func addFile(b *kar.Builder, root, path string) error {
	name, err := filepath.Rel(root, path)
	if err != nil || name == "." {
		name = filepath.Base(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := b.Add(filepath.ToSlash(name), f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.WithField("file", name).Debug("Added")
	return nil
}

func extractFiles(src, dstDir string) error {
	ar, err := kar.OpenFile(src)
	if err != nil {
		return err
	}
	defer ar.Close()

	if dstDir == "out.kar" {
		dstDir = "."
	}
	for _, entry := range ar.Files() {
		target := filepath.Join(dstDir, filepath.Clean("/"+entry.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		r, err := ar.Open(entry.Name)
		if err != nil {
			return err
		}
		f, err := os.Create(target)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, r)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name, err)
		}
		log.WithField("file", target).Info("Extracted")
	}
	return nil
}

func listFiles(src string) error {
	ar, err := kar.OpenFile(src)
	if err != nil {
		return err
	}
	defer ar.Close()

	h := ar.Header()
	fmt.Printf("author: %s\nversion: %d\ncreated: %s\n", h.Author, h.Version, time.Unix(h.DateCreated, 0).Format(time.RFC3339))
	for _, e := range ar.Files() {
		fmt.Printf("%10d %10d %s\n", e.Size, e.CompressedSize, e.Name)
	}
	return nil
}
