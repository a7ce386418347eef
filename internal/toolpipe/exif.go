package toolpipe

import "encoding/binary"

// exifOrientation scans a JPEG byte stream for the EXIF APP1 segment and
// returns the Orientation tag value (1-8), defaulting to 1 (normal) if no
// tag is present or the data isn't a JPEG. Hand-rolled: no third-party EXIF
// library appears anywhere in the example corpus, and the segment this
// needs is a small fixed binary layout, not a case for a whole dependency.
func exifOrientation(data []byte) int {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return 1
	}
	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return 1
		}
		marker := data[pos+1]
		if marker == 0xD9 || marker == 0xDA {
			return 1 // end of image / start of scan: EXIF always precedes scan data
		}
		if marker >= 0xD0 && marker <= 0xD8 {
			pos += 2
			continue
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		segStart := pos + 4
		segEnd := pos + 2 + segLen
		if segEnd > len(data) || segEnd < segStart {
			return 1
		}
		if marker == 0xE1 && segStart+6 <= len(data) && string(data[segStart:segStart+6]) == "Exif\x00\x00" {
			if o, ok := parseExifOrientation(data[segStart+6 : segEnd]); ok {
				return o
			}
			return 1
		}
		pos = segEnd
	}
	return 1
}

// parseExifOrientation walks a TIFF header's IFD0 looking for tag 0x0112
// (Orientation, type SHORT).
func parseExifOrientation(tiff []byte) (int, bool) {
	if len(tiff) < 8 {
		return 0, false
	}
	var bo binary.ByteOrder
	switch string(tiff[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return 0, false
	}

	ifdOffset := bo.Uint32(tiff[4:8])
	if int(ifdOffset)+2 > len(tiff) {
		return 0, false
	}
	numEntries := int(bo.Uint16(tiff[ifdOffset : ifdOffset+2]))
	entryStart := int(ifdOffset) + 2

	for i := 0; i < numEntries; i++ {
		off := entryStart + i*12
		if off+12 > len(tiff) {
			break
		}
		tag := bo.Uint16(tiff[off : off+2])
		if tag != 0x0112 {
			continue
		}
		valType := bo.Uint16(tiff[off+2 : off+4])
		if valType != 3 { // SHORT
			continue
		}
		v := bo.Uint16(tiff[off+8 : off+10])
		if v >= 1 && v <= 8 {
			return int(v), true
		}
	}
	return 0, false
}
