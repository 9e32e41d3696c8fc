package vectorindex

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// WriteNPY writes a rows x dim float32 matrix in NumPy .npy format
// (version 1.0, little-endian, C order) so the embedding matrix loads
// directly with numpy.load.
func WriteNPY(w io.Writer, rows, dim int, data []float32) error {
	if len(data) != rows*dim {
		return fmt.Errorf("%w: %d values for a %dx%d matrix", ErrMisaligned, len(data), rows, dim)
	}

	header := fmt.Sprintf("{'descr': '<f4', 'fortran_order': False, 'shape': (%d, %d), }", rows, dim)
	// magic(6) + version(2) + header length(2) + header, padded with spaces
	// and a trailing newline to a multiple of 64 bytes.
	preamble := len(npyMagic) + 2 + 2
	total := preamble + len(header) + 1
	if pad := total % 64; pad != 0 {
		header += strings.Repeat(" ", 64-pad)
	}
	header += "\n"

	bw := bufio.NewWriter(w)
	bw.Write(npyMagic)
	bw.Write([]byte{1, 0})
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	bw.WriteString(header)
	if err := binary.Write(bw, binary.LittleEndian, data); err != nil {
		return fmt.Errorf("write matrix: %w", err)
	}
	return bw.Flush()
}

var (
	npyDescr   = regexp.MustCompile(`'descr':\s*'([^']*)'`)
	npyFortran = regexp.MustCompile(`'fortran_order':\s*(True|False)`)
	npyShape   = regexp.MustCompile(`'shape':\s*\(\s*(\d+)\s*,\s*(\d+)\s*,?\s*\)`)
)

// ReadNPY reads a two-dimensional little-endian float32 matrix written by
// WriteNPY or numpy.save.
func ReadNPY(r io.Reader) (rows, dim int, data []float32, err error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(npyMagic)+2)
	if _, err := io.ReadFull(br, magic); err != nil {
		return 0, 0, nil, fmt.Errorf("read npy magic: %w", err)
	}
	if !bytes.Equal(magic[:len(npyMagic)], npyMagic) {
		return 0, 0, nil, fmt.Errorf("not an npy file")
	}

	var headerLen int
	switch major := magic[len(npyMagic)]; major {
	case 1:
		var n uint16
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return 0, 0, nil, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
			return 0, 0, nil, fmt.Errorf("read npy header length: %w", err)
		}
		headerLen = int(n)
	default:
		return 0, 0, nil, fmt.Errorf("unsupported npy version %d", major)
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(br, header); err != nil {
		return 0, 0, nil, fmt.Errorf("read npy header: %w", err)
	}

	h := string(header)
	if m := npyDescr.FindStringSubmatch(h); m == nil || m[1] != "<f4" {
		return 0, 0, nil, fmt.Errorf("unsupported npy dtype in header %q", strings.TrimSpace(h))
	}
	if m := npyFortran.FindStringSubmatch(h); m == nil || m[1] != "False" {
		return 0, 0, nil, fmt.Errorf("fortran-ordered npy matrices are not supported")
	}
	m := npyShape.FindStringSubmatch(h)
	if m == nil {
		return 0, 0, nil, fmt.Errorf("npy header has no two-dimensional shape: %q", strings.TrimSpace(h))
	}
	rows, _ = strconv.Atoi(m[1])
	dim, _ = strconv.Atoi(m[2])

	data = make([]float32, rows*dim)
	if err := binary.Read(br, binary.LittleEndian, data); err != nil {
		return 0, 0, nil, fmt.Errorf("read npy matrix: %w", err)
	}
	return rows, dim, data, nil
}
