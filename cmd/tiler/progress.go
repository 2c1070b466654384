package main

import (
	"fmt"
	"time"

	pb "gopkg.in/cheggaaa/pb.v1"

	"vectiler/internal/slicer"
)

// barProgress draws one terminal progress bar per zoom level.
type barProgress struct{}

func (barProgress) Zoom(zoom, total int) slicer.Bar {
	bar := pb.New(total).Prefix(fmt.Sprintf("Zoom %d : ", zoom)).Postfix("\n")
	bar.SetRefreshRate(time.Second)
	bar.Start()
	return bar
}
