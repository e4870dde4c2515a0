package main

import (
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
)

func main() {
	serverURL := flag.String("url", "http://localhost:8080/", "upload endpoint")
	temporary := flag.Bool("temporary", false, "mark the upload temporary")
	ttl := flag.Int64("ttl", 0, "seconds until a temporary upload expires")
	length := flag.Int("length", 0, "random name length to request")
	appendName := flag.Bool("append", false, "append the original filename")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: upload [flags] <file>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	path := flag.Arg(0)

	link, err := upload(*serverURL, path, options{
		temporary:  *temporary,
		ttl:        *ttl,
		length:     *length,
		appendName: *appendName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(link)
}

type options struct {
	temporary  bool
	ttl        int64
	length     int
	appendName bool
}

// upload POSTs a multipart request with one file part plus the optional
// policy fields and returns the server's plain-text URL.
func upload(serverURL, path string, opts options) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		err := writeForm(form, file, filepath.Base(path), opts)
		form.Close()
		pw.CloseWithError(err)
	}()

	resp, err := http.Post(serverURL, form.FormDataContentType(), pr)
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server replied %d: %s", resp.StatusCode, body)
	}

	return string(body), nil
}

func writeForm(form *multipart.Writer, file io.Reader, name string, opts options) error {
	if opts.temporary {
		if err := form.WriteField("temporary", "true"); err != nil {
			return err
		}
		if err := form.WriteField("TTL", strconv.FormatInt(opts.ttl, 10)); err != nil {
			return err
		}
	}
	if opts.length > 0 {
		if err := form.WriteField("length", strconv.Itoa(opts.length)); err != nil {
			return err
		}
	}
	if opts.appendName {
		if err := form.WriteField("append", "true"); err != nil {
			return err
		}
	}

	part, err := form.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}
