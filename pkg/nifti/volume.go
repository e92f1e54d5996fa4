package nifti

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"mdroistats/internal/models"
)

// LoadMetric reads a scalar metric volume such as an MD map
func LoadMetric(path string) (models.MetricVolume, error) {
	img, err := ReadFile(path)
	if err != nil {
		return models.MetricVolume{}, err
	}
	return models.MetricVolume{
		Data:      img.Data,
		Dims:      img.Dims(),
		VoxelSize: img.VoxelSize(),
	}, nil
}

// labelTolerance is how far a float-stored label may sit from an integer
const labelTolerance = 1e-3

// LoadLabels reads an atlas volume. Float-stored labels within
// labelTolerance of an integer are snapped to it. Non-integral values, as
// left by interpolating resamplers, are rejected along with non-finite,
// negative or out of range values.
func LoadLabels(path string) (models.LabelVolume, error) {
	img, err := ReadFile(path)
	if err != nil {
		return models.LabelVolume{}, err
	}

	labels := make([]int32, len(img.Data))
	for i, v := range img.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.LabelVolume{}, fmt.Errorf("%s: non-finite label at voxel %d", path, i)
		}
		r := math.Round(v)
		if math.Abs(v-r) > labelTolerance {
			return models.LabelVolume{}, fmt.Errorf("%s: non-integral label %g at voxel %d", path, v, i)
		}
		if r < 0 || r > math.MaxInt32 {
			return models.LabelVolume{}, fmt.Errorf("%s: label %g at voxel %d out of range", path, v, i)
		}
		labels[i] = int32(r)
	}

	return models.LabelVolume{Data: labels, Dims: img.Dims()}, nil
}

// WriteFile stores data as a single-file NIfTI-1 volume. A ".gz" suffix
// compresses the output. Supported datatypes are DTUint8, DTInt16, DTInt32,
// DTFloat32 and DTFloat64.
func WriteFile(path string, dims models.Dims, voxelSize models.VoxelSize, datatype int16, data []float64) error {
	if len(data) != dims.Len() {
		return fmt.Errorf("data has %d voxels, dims %s need %d", len(data), dims, dims.Len())
	}
	size, err := bytesPerVoxel(datatype)
	if err != nil {
		return err
	}

	h := Header{
		SizeofHdr: headerSize,
		Regular:   'r',
		Datatype:  datatype,
		Bitpix:    int16(size * 8),
		VoxOffset: dataOffset,
		SclSlope:  1,
		XyztUnits: 2, // mm
	}
	h.Dim = [8]int16{3, int16(dims.X), int16(dims.Y), int16(dims.Z), 1, 1, 1, 1}
	h.Pixdim = [8]float32{1, float32(voxelSize.X), float32(voxelSize.Y), float32(voxelSize.Z), 0, 0, 0, 0}
	copy(h.Magic[:], "n+1\x00")
	copy(h.Descrip[:], "mdroistats")

	var buf bytes.Buffer
	order := binary.LittleEndian
	if err := binary.Write(&buf, order, &h); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	// Empty extension block
	buf.Write([]byte{0, 0, 0, 0})

	b := make([]byte, size)
	for _, v := range data {
		switch datatype {
		case DTUint8:
			b[0] = uint8(v)
		case DTInt16:
			order.PutUint16(b, uint16(int16(v)))
		case DTInt32:
			order.PutUint32(b, uint32(int32(v)))
		case DTFloat32:
			order.PutUint32(b, math.Float32bits(float32(v)))
		case DTFloat64:
			order.PutUint64(b, math.Float64bits(v))
		default:
			return fmt.Errorf("%w for writing: %d", ErrUnsupportedDatatype, datatype)
		}
		buf.Write(b)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		zw := gzip.NewWriter(file)
		if _, err := zw.Write(buf.Bytes()); err != nil {
			return err
		}
		if err := zw.Close(); err != nil {
			return err
		}
	} else if _, err := file.Write(buf.Bytes()); err != nil {
		return err
	}

	return file.Close()
}
