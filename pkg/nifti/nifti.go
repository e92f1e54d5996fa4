// Package nifti reads and writes single-file NIfTI-1 volumes (.nii and
// .nii.gz) and converts them into the metric and label volumes used by the
// statistics engine.
//
// Based on the nifti1 header definition,
// https://nifti.nimh.nih.gov/pub/dist/src/niftilib/nifti1.h
package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"mdroistats/internal/models"
)

// Header defines the structure of the NIfTI-1 header
type Header struct {
	SizeofHdr      int32      // Must be 348
	DataTypeUnused [10]byte   // Unused
	DbName         [18]byte   // Unused
	Extents        int32      // Unused
	SessionError   int16      // Unused
	Regular        byte       // Unused
	DimInfo        byte       // MRI slice ordering
	Dim            [8]int16   // Data array dimensions
	IntentP1       float32    // 1st intent parameter
	IntentP2       float32    // 2nd intent parameter
	IntentP3       float32    // 3rd intent parameter
	IntentCode     int16      // NIFTI_INTENT_* code
	Datatype       int16      // Defines data type
	Bitpix         int16      // Number bits/voxel
	SliceStart     int16      // First slice index
	Pixdim         [8]float32 // Grid spacing
	VoxOffset      float32    // Offset into .nii file
	SclSlope       float32    // Data scaling: slope
	SclInter       float32    // Data scaling: offset
	SliceEnd       int16      // Last slice index
	SliceCode      byte       // Slice timing order
	XyztUnits      byte       // Units of pixdim[1..4]
	CalMax         float32    // Max display intensity
	CalMin         float32    // Min display intensity
	SliceDuration  float32    // Time for 1 slice
	Toffset        float32    // Time axis shift
	Glmax          int32      // Unused
	Glmin          int32      // Unused
	Descrip        [80]byte   // Any text you like
	AuxFile        [24]byte   // Auxiliary filename
	QformCode      int16      // NIFTI_XFORM_* code
	SformCode      int16      // NIFTI_XFORM_* code
	QuaternB       float32    // Quaternion b param
	QuaternC       float32    // Quaternion c param
	QuaternD       float32    // Quaternion d param
	QoffsetX       float32    // Quaternion x shift
	QoffsetY       float32    // Quaternion y shift
	QoffsetZ       float32    // Quaternion z shift
	SrowX          [4]float32 // 1st row affine transform
	SrowY          [4]float32 // 2nd row affine transform
	SrowZ          [4]float32 // 3rd row affine transform
	IntentName     [16]byte   // Name or meaning of data
	Magic          [4]byte    // Must be "n+1\0" for single files
}

const (
	headerSize = 348

	// dataOffset is the header plus the 4 byte extension flag
	dataOffset = 352
)

// NIfTI-1 datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
	DTInt64   int16 = 1024
	DTUint64  int16 = 1280
)

var (
	// ErrNotNifti is returned when the header size or magic does not match
	ErrNotNifti = errors.New("not a single-file NIfTI-1 image")

	// ErrUnsupportedDatatype is returned for datatypes without a decoder
	ErrUnsupportedDatatype = errors.New("unsupported NIfTI datatype")
)

// Image is a decoded NIfTI volume
type Image struct {
	Header Header

	// Order is the byte order the file was written in
	Order binary.ByteOrder

	// Data holds the scaled voxel values in file (raster) order
	Data []float64
}

// Dims returns the spatial dimensions of the image
func (img *Image) Dims() models.Dims {
	return models.Dims{X: int(img.Header.Dim[1]), Y: int(img.Header.Dim[2]), Z: int(img.Header.Dim[3])}
}

// VoxelSize returns the grid spacing of the first three axes
func (img *Image) VoxelSize() models.VoxelSize {
	return models.VoxelSize{
		X: float64(img.Header.Pixdim[1]),
		Y: float64(img.Header.Pixdim[2]),
		Z: float64(img.Header.Pixdim[3]),
	}
}

// Description returns the descrip field as a string
func (img *Image) Description() string {
	return strings.TrimRight(string(img.Header.Descrip[:]), "\x00 ")
}

// ReadFile loads a .nii or .nii.gz file
func ReadFile(path string) (*Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return img, nil
}

// Read decodes a NIfTI-1 image from r, transparently handling gzip
func Read(r io.Reader) (*Image, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress: %w", err)
		}
	}

	if len(raw) < headerSize {
		return nil, ErrNotNifti
	}

	h, order, err := readHeader(raw[:headerSize])
	if err != nil {
		return nil, err
	}
	if err := validateHeader(h); err != nil {
		return nil, err
	}
	for i := int(h.Dim[0]) + 1; i <= 3; i++ {
		h.Dim[i] = 1
	}

	data, err := readData(raw, h, order)
	if err != nil {
		return nil, err
	}

	return &Image{Header: h, Order: order, Data: data}, nil
}

// readHeader decodes the header, detecting the byte order from sizeof_hdr
func readHeader(buf []byte) (Header, binary.ByteOrder, error) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		var h Header
		if err := binary.Read(bytes.NewReader(buf), order, &h); err != nil {
			return Header{}, nil, err
		}
		if h.SizeofHdr == headerSize {
			return h, order, nil
		}
	}
	return Header{}, nil, ErrNotNifti
}

func validateHeader(h Header) error {
	if string(h.Magic[:3]) != "n+1" {
		return fmt.Errorf("%w: magic %q", ErrNotNifti, h.Magic[:3])
	}

	ndim := int(h.Dim[0])
	if ndim < 1 || ndim > 7 {
		return fmt.Errorf("invalid number of dimensions %d", ndim)
	}
	for i := 4; i <= ndim; i++ {
		if h.Dim[i] > 1 {
			return fmt.Errorf("expected a 3D volume, dimension %d has size %d", i, h.Dim[i])
		}
	}
	for i := 1; i <= 3; i++ {
		if i <= ndim && h.Dim[i] < 1 {
			return fmt.Errorf("invalid size %d for dimension %d", h.Dim[i], i)
		}
	}
	return nil
}

// bytesPerVoxel returns the storage size of a datatype
func bytesPerVoxel(datatype int16) (int, error) {
	switch datatype {
	case DTUint8, DTInt8:
		return 1, nil
	case DTInt16, DTUint16:
		return 2, nil
	case DTInt32, DTUint32, DTFloat32:
		return 4, nil
	case DTFloat64, DTInt64, DTUint64:
		return 8, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedDatatype, datatype)
}

// readData decodes the voxel array and applies scl_slope and scl_inter
func readData(raw []byte, h Header, order binary.ByteOrder) ([]float64, error) {
	size, err := bytesPerVoxel(h.Datatype)
	if err != nil {
		return nil, err
	}

	n := 1
	for i := 1; i <= int(h.Dim[0]) && i <= 3; i++ {
		n *= int(h.Dim[i])
	}
	offset := int(h.VoxOffset)
	if offset < dataOffset {
		offset = dataOffset
	}
	end := offset + n*size
	if end > len(raw) {
		return nil, fmt.Errorf("truncated data: need %d bytes, have %d", end, len(raw))
	}
	buf := raw[offset:end]

	data := make([]float64, n)
	for i := 0; i < n; i++ {
		b := buf[i*size : (i+1)*size]
		switch h.Datatype {
		case DTUint8:
			data[i] = float64(b[0])
		case DTInt8:
			data[i] = float64(int8(b[0]))
		case DTInt16:
			data[i] = float64(int16(order.Uint16(b)))
		case DTUint16:
			data[i] = float64(order.Uint16(b))
		case DTInt32:
			data[i] = float64(int32(order.Uint32(b)))
		case DTUint32:
			data[i] = float64(order.Uint32(b))
		case DTFloat32:
			data[i] = float64(math.Float32frombits(order.Uint32(b)))
		case DTFloat64:
			data[i] = math.Float64frombits(order.Uint64(b))
		case DTInt64:
			data[i] = float64(int64(order.Uint64(b)))
		case DTUint64:
			data[i] = float64(order.Uint64(b))
		}
	}

	// A zero or NaN slope means no scaling
	slope := float64(h.SclSlope)
	if slope != 0 && !math.IsNaN(slope) && !(slope == 1 && h.SclInter == 0) {
		inter := float64(h.SclInter)
		for i := range data {
			data[i] = data[i]*slope + inter
		}
	}

	return data, nil
}
