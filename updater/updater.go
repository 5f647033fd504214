// Package updater self-updates the flowchat binary from GitHub
// releases.
package updater

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"flowchat/version"
)

const latestReleaseURL = "https://api.github.com/repos/flowstate-hq/flowchat/releases/latest"

type release struct {
	TagName string  `json:"tag_name"`
	Assets  []asset `json:"assets"`
}

type asset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Update describes an available release for the running platform.
type Update struct {
	Available      bool
	CurrentVersion string
	LatestVersion  string
	DownloadURL    string
	ChecksumURL    string
}

// Check asks GitHub for the latest release and compares it against the
// running version.
func Check() (*Update, error) {
	current := version.Get()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(latestReleaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API returned status %d: %s", resp.StatusCode, string(body))
	}

	var rel release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return nil, err
	}

	update := &Update{
		Available:      isNewer(current, rel.TagName),
		CurrentVersion: current,
		LatestVersion:  rel.TagName,
	}
	if !update.Available {
		return update, nil
	}

	wanted := assetName(rel.TagName)
	for _, a := range rel.Assets {
		switch a.Name {
		case wanted:
			update.DownloadURL = a.BrowserDownloadURL
		case "SHA256SUMS":
			update.ChecksumURL = a.BrowserDownloadURL
		}
	}
	if update.DownloadURL == "" {
		return nil, fmt.Errorf("no release asset for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return update, nil
}

func isNewer(current, latest string) bool {
	current = strings.TrimPrefix(current, "v")
	latest = strings.TrimPrefix(latest, "v")
	if current == "dev" {
		return true
	}
	return current != latest && latest > current
}

func assetName(tag string) string {
	return fmt.Sprintf("flowchat-%s-%s-%s.tar.gz", tag, runtime.GOOS, runtime.GOARCH)
}

// Apply downloads the release, verifies its checksum when one is
// published, and swaps the running binary.
func Apply(update *Update) error {
	tmpDir, err := os.MkdirTemp("", "flowchat-update-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, filepath.Base(update.DownloadURL))
	if err := download(archivePath, update.DownloadURL); err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}

	if update.ChecksumURL != "" {
		sumsPath := filepath.Join(tmpDir, "SHA256SUMS")
		if err := download(sumsPath, update.ChecksumURL); err != nil {
			return fmt.Errorf("failed to download checksums: %w", err)
		}
		if err := verifyChecksum(archivePath, sumsPath); err != nil {
			return fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	binaryPath, err := extractBinary(archivePath, tmpDir)
	if err != nil {
		return fmt.Errorf("failed to extract binary: %w", err)
	}

	if err := replaceBinary(binaryPath); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}
	return nil
}

func download(dest, url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

func verifyChecksum(archivePath, sumsPath string) error {
	data, err := os.ReadFile(sumsPath)
	if err != nil {
		return err
	}

	expected := ""
	name := filepath.Base(archivePath)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			expected = fields[0]
			break
		}
	}
	if expected == "" {
		return fmt.Errorf("no checksum found for %s", name)
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return err
	}

	actual := hex.EncodeToString(hash.Sum(nil))
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

func extractBinary(archivePath, destDir string) (string, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	gzr, err := gzip.NewReader(file)
	if err != nil {
		return "", err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		destPath := filepath.Join(destDir, filepath.Base(header.Name))
		out, err := os.Create(destPath)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return "", err
		}
		out.Close()

		if err := os.Chmod(destPath, 0755); err != nil {
			return "", err
		}
		return destPath, nil
	}
	return "", fmt.Errorf("no binary found in archive")
}

func replaceBinary(newPath string) error {
	currentPath, err := os.Executable()
	if err != nil {
		return err
	}
	currentPath, err = filepath.EvalSymlinks(currentPath)
	if err != nil {
		return err
	}

	backupPath := currentPath + ".backup"
	if err := os.Rename(currentPath, backupPath); err != nil {
		return fmt.Errorf("failed to back up current binary: %w", err)
	}

	if err := copyFile(newPath, currentPath); err != nil {
		os.Rename(backupPath, currentPath)
		return fmt.Errorf("failed to copy new binary: %w", err)
	}
	if err := os.Chmod(currentPath, 0755); err != nil {
		return err
	}

	os.Remove(backupPath)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
