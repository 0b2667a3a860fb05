package ves

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/extrame/ole2"
)

// BIFF record identifiers
const (
	recFormula    = 0x0006
	recEOF        = 0x000A
	recBoundSheet = 0x0085
	recMulRK      = 0x00BD
	recMulBlank   = 0x00BE
	recLabelSST   = 0x00FD
	recBlank      = 0x0201
	recNumber     = 0x0203
	recLabel      = 0x0204
	recBoolErr    = 0x0205
	recString     = 0x0207
	recRK         = 0x027E
	recBOF        = 0x0809

	biff8Version = 0x0600
)

var errMissingWorkbookStream = errors.New("missing workbook stream")

type cellKey struct {
	row, col int
}

// rawSheet holds the cell values read straight from the sheet records.
// The xls decoder renders numbers behind user-defined formats as dates and
// formulas as a placeholder, so numeric and formula cells are taken from here
type rawSheet struct {
	values map[cellKey]string

	// row -> number of used columns
	widths map[int]int
}

func newRawSheet() *rawSheet {
	return &rawSheet{
		values: make(map[cellKey]string),
		widths: make(map[int]int),
	}
}

func (s *rawSheet) touch(row, col int) {
	if col+1 > s.widths[row] {
		s.widths[row] = col + 1
	}
}

func (s *rawSheet) set(row, col int, value string) {
	s.values[cellKey{row: row, col: col}] = value
	s.touch(row, col)
}

// readWorkbookStream extracts the BIFF workbook stream from the OLE2 container
func readWorkbookStream(r io.ReadSeeker, charset string) ([]byte, error) {
	doc, err := ole2.Open(r, charset)
	if err != nil {
		return nil, err
	}

	dir, err := doc.ListDir()
	if err != nil {
		return nil, err
	}

	var book, root *ole2.File

	for _, file := range dir {
		switch file.Name() {
		case "Workbook", "Book":
			book = file
		case "Root Entry":
			root = file
		}
	}

	if book == nil || root == nil {
		return nil, errMissingWorkbookStream
	}

	stream, err := io.ReadAll(doc.OpenFile(book, root))
	if err != nil {
		return nil, fmt.Errorf("unable to read workbook stream: %w", err)
	}

	if int64(len(stream)) > int64(book.Size) {
		stream = stream[:book.Size]
	}

	return stream, nil
}

// scanSheets walks the workbook stream records and collects, per sheet
// (in BOUNDSHEET order), the numeric and formula cell values
func scanSheets(stream []byte) []*rawSheet {
	var (
		sheets  []*rawSheet
		sheetAt = make(map[int]int)
		current *rawSheet
		pending *cellKey
		biff8   = true
	)

	for pos := 0; pos+4 <= len(stream); {
		var (
			id    = binary.LittleEndian.Uint16(stream[pos:])
			size  = int(binary.LittleEndian.Uint16(stream[pos+2:]))
			start = pos
		)

		if pos+4+size > len(stream) {
			break
		}

		data := stream[pos+4 : pos+4+size]
		pos += 4 + size

		switch id {
		case recBOF:
			if len(data) >= 2 && start == 0 {
				biff8 = binary.LittleEndian.Uint16(data) == biff8Version
			}

			current = nil

			if idx, ok := sheetAt[start]; ok {
				current = sheets[idx]
			}

			continue
		case recEOF:
			current = nil

			continue
		case recBoundSheet:
			if len(data) >= 4 {
				sheetAt[int(binary.LittleEndian.Uint32(data))] = len(sheets)
				sheets = append(sheets, newRawSheet())
			}

			continue
		}

		if current == nil {
			continue
		}

		if id == recString {
			if pending != nil {
				current.set(pending.row, pending.col, decodeBIFFString(data, biff8))
				pending = nil
			}

			continue
		}

		pending = nil

		if len(data) < 4 {
			continue
		}

		row := int(binary.LittleEndian.Uint16(data))
		col := int(binary.LittleEndian.Uint16(data[2:]))

		switch id {
		case recNumber:
			if len(data) >= 14 {
				v := math.Float64frombits(binary.LittleEndian.Uint64(data[6:]))
				current.set(row, col, formatNumber(v))
			}
		case recRK:
			if len(data) >= 10 {
				current.set(row, col, formatNumber(decodeRK(binary.LittleEndian.Uint32(data[6:]))))
			}
		case recMulRK:
			// row, first col, n * (xf, rk), last col
			for i := 0; 4+i*6+6 <= len(data)-2; i++ {
				rk := binary.LittleEndian.Uint32(data[4+i*6+2:])
				current.set(row, col+i, formatNumber(decodeRK(rk)))
			}
		case recFormula:
			if len(data) < 14 {
				continue
			}

			result := data[6:14]
			if result[6] != 0xFF || result[7] != 0xFF {
				current.set(row, col, formatNumber(math.Float64frombits(binary.LittleEndian.Uint64(result))))

				continue
			}

			// Non-numeric result: a string (in the next STRING record), boolean, error or empty
			current.set(row, col, "")

			if result[0] == 0 {
				pending = &cellKey{row: row, col: col}
			}
		case recMulBlank:
			if len(data) >= 6 {
				current.touch(row, int(binary.LittleEndian.Uint16(data[len(data)-2:])))
			}
		case recLabelSST, recLabel, recBlank, recBoolErr:
			current.touch(row, col)
		}
	}

	return sheets
}

// decodeRK decodes the compressed RK number representation
func decodeRK(rk uint32) float64 {
	var v float64

	if rk&0x02 != 0 {
		v = float64(int32(rk) >> 2)
	} else {
		v = math.Float64frombits(uint64(rk&^0x03) << 32)
	}

	if rk&0x01 != 0 {
		v /= 100
	}

	return v
}

// decodeBIFFString decodes the text of a STRING record
func decodeBIFFString(data []byte, biff8 bool) string {
	if len(data) < 2 {
		return ""
	}

	count := int(binary.LittleEndian.Uint16(data))
	data = data[2:]

	if !biff8 {
		if count > len(data) {
			count = len(data)
		}

		return string(data[:count])
	}

	if len(data) < 1 {
		return ""
	}

	flags := data[0]
	data = data[1:]

	if flags&0x01 == 0 {
		// Compressed, one byte per character
		if count > len(data) {
			count = len(data)
		}

		runes := make([]rune, count)
		for i, b := range data[:count] {
			runes[i] = rune(b)
		}

		return string(runes)
	}

	if count > len(data)/2 {
		count = len(data) / 2
	}

	units := make([]uint16, count)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[i*2:])
	}

	return string(utf16.Decode(units))
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
