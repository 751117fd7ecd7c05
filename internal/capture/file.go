package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// FileSource replays a pcap file. ReadPacketData returns io.EOF at the end.
type FileSource struct {
	path   string
	file   *os.File
	reader *pcapgo.Reader
	read   uint64
}

// OpenFile opens a pcap capture file for replay.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file %s: %w", path, err)
	}
	r, err := pcapgo.NewReader(bufio.NewReader(f))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to read pcap header of %s: %w", path, err)
	}
	return &FileSource{path: path, file: f, reader: r}, nil
}

// Interface returns the file path; replayed frames have no live interface.
func (fs *FileSource) Interface() string { return fs.path }

func (fs *FileSource) LinkType() layers.LinkType { return fs.reader.LinkType() }

func (fs *FileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := fs.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet: %w", err)
	}
	fs.read++
	return data, ci, nil
}

func (fs *FileSource) Stats() (Stats, error) {
	return Stats{Received: fs.read}, nil
}

func (fs *FileSource) Close() error {
	return fs.file.Close()
}

// FileOpener is an Opener that treats the interface name as a pcap file path.
func FileOpener(path string, _ Options) (Source, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}
