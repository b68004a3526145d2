package timetag

import (
	"fmt"

	hdf5 "github.com/jmbenlloch/go-hdf5"
)

// CorrectedEventHDF5 is the on-disk layout of one corrected event row.
type CorrectedEventHDF5 struct {
	time    float64
	rawx    float32
	rawy    float32
	xcorr   float32
	ycorr   float32
	xdopp   float32
	ydopp   float32
	xfull   float32
	yfull   float32
	pha     int16
	dq      int16
	epsilon float32
}

// GTIHDF5 is one good time interval row, seconds from exposure start.
type GTIHDF5 struct {
	start float64
	stop  float64
}

// SwitchHDF5 records the final state of one calibration switch.
type SwitchHDF5 struct {
	name  [STRLEN]byte
	state [STRLEN]byte
}

// KeywordHDF5 is one numeric metadata keyword.
type KeywordHDF5 struct {
	keyword [STRLEN]byte
	value   float64
}

const STRLEN = 20

const compressionLevel = 4

func convertToHdf5String(s string) [STRLEN]byte {
	var byteArray [STRLEN]byte
	copy(byteArray[:], s)
	return byteArray
}

func openFile(fname string) *hdf5.File {
	f, err := hdf5.CreateFile(fname, hdf5.F_ACC_TRUNC)
	if err != nil {
		panic(err)
	}
	return f
}

func createGroup(file *hdf5.File, groupName string) *hdf5.Group {
	g, err := file.CreateGroup(groupName)
	if err != nil {
		panic(err)
	}
	return g
}

// createImage makes a fixed-size 2-D dataset of doubles, chunked by row
// and deflate compressed.
func createImage(group *hdf5.Group, name string, nx int, ny int) *hdf5.Dataset {
	dims := []uint{uint(ny), uint(nx)}
	return createArray(group, name, dims, hdf5.T_NATIVE_DOUBLE)
}

// createShortImage makes a fixed-size 2-D dataset of short integers,
// used for the data-quality plane.
func createShortImage(group *hdf5.Group, name string, nx int, ny int) *hdf5.Dataset {
	dims := []uint{uint(ny), uint(nx)}
	return createArray(group, name, dims, hdf5.T_NATIVE_INT16)
}

// createCube makes a fixed-size 3-D dataset of doubles for the
// pulse-height-binned cumulative image.
func createCube(group *hdf5.Group, name string, nx int, ny int, nz int) *hdf5.Dataset {
	dims := []uint{uint(nz), uint(ny), uint(nx)}
	return createArray(group, name, dims, hdf5.T_NATIVE_DOUBLE)
}

func createArray(group *hdf5.Group, name string, dims []uint, dtype *hdf5.Datatype) *hdf5.Dataset {
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, dims)
	if err != nil {
		panic(err)
	}

	// create property list
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		fmt.Println("plist")
		panic(err)
	}

	chunks := make([]uint, len(dims))
	copy(chunks, dims)
	chunks[0] = 1
	plist.SetChunk(chunks)
	plist.SetDeflate(compressionLevel)

	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		panic(err)
	}
	return dset
}

func createTable(group *hdf5.Group, name string, datatype interface{}) *hdf5.Dataset {
	dims := []uint{0}
	unlimitedDims := -1 // H5S_UNLIMITED is -1L
	maxDims := []uint{uint(unlimitedDims)}
	fileSpace, err := hdf5.CreateSimpleDataspace(dims, maxDims)
	if err != nil {
		panic(err)
	}

	// create property list
	plist, err := hdf5.NewPropList(hdf5.P_DATASET_CREATE)
	if err != nil {
		panic(err)
	}

	chunks := []uint{32768}
	plist.SetChunk(chunks)
	plist.SetDeflate(compressionLevel)

	// create the memory data type
	dtype, err := hdf5.NewDatatypeFromValue(datatype)
	if err != nil {
		panic(err)
	}

	// create the dataset
	dset, err := group.CreateDatasetWith(name, dtype, fileSpace, plist)
	if err != nil {
		panic(err)
	}
	return dset
}

func writeArrayToTable[T any](dataset *hdf5.Dataset, data *[]T, counter int) {
	length := uint(len(*data))
	dims := []uint{length}
	dataspace, err := hdf5.CreateSimpleDataspace(dims, nil)
	if err != nil {
		fmt.Println("space")
		panic(err)
	}

	// extend
	rowsInFile := uint(counter)
	newsize := []uint{rowsInFile + length}
	dataset.Resize(newsize)
	filespace := dataset.Space()

	start := []uint{rowsInFile}
	count := []uint{length}
	filespace.SelectHyperslab(start, nil, count, nil)

	err = dataset.WriteSubset(data, dataspace, filespace)
	if err != nil {
		panic(err)
	}

	dataspace.Close()
	filespace.Close()
}

func writeImage(dataset *hdf5.Dataset, data *[]float64) {
	err := dataset.Write(data)
	if err != nil {
		panic(err)
	}
}

func writeShortImage(dataset *hdf5.Dataset, data *[]int16) {
	err := dataset.Write(data)
	if err != nil {
		panic(err)
	}
}
