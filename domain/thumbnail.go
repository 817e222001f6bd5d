package domain

import (
	"bytes"
	"image"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"

	"github.com/disintegration/gift"
)

var (
	Small  = ThumbSize{120, "S"}
	Medium = ThumbSize{427, "M"}
	Large  = ThumbSize{640, "L"}

	ThumbSizes = map[string]ThumbSize{
		Small.Name:  Small,
		Medium.Name: Medium,
		Large.Name:  Large,
	}
)

type ThumbSize struct {
	width int
	Name  string
}

func (size ThumbSize) BoundsOf(img image.Rectangle) image.Rectangle {
	if img.Dx() > img.Dy() {
		return image.Rect(0, 0, size.width, (size.width*img.Dy())/img.Dx())
	} else {
		return image.Rect(0, 0, (size.width*img.Dx())/img.Dy(), size.width)
	}
}

// Thumbnail scales img to fit into the given size, keeping the aspect ratio
func Thumbnail(img image.Image, size ThumbSize) image.Image {
	targetSize := size.BoundsOf(img.Bounds())
	thumb := image.NewRGBA(targetSize)
	filter := gift.New(
		gift.ResizeToFit(targetSize.Dx(), targetSize.Dy(), gift.LinearResampling),
	)
	filter.Draw(thumb, img)
	return thumb
}

// ThumbnailOf decodes the photo content and returns a JPEG encoded thumbnail
func ThumbnailOf(data []byte, size ThumbSize) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, NewDecodeError("thumbnail", err)
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, Thumbnail(img, size), &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
