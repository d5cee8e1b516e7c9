package yt

import (
	"os"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// Info метадані з .info.json для підпису.
type Info struct {
	ID          string
	Title       string
	Description string
	Uploader    string
}

// ReadInfo читає лише потрібні поля, решту (formats, thumbnails) пропускає.
func ReadInfo(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, errors.Wrap(err, "читання info.json")
	}
	return ParseInfo(data)
}

func ParseInfo(data []byte) (Info, error) {
	var info Info
	d := jx.DecodeBytes(data)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id", "title", "fulltitle", "description", "uploader":
			if d.Next() != jx.String {
				return d.Skip()
			}
			s, err := d.Str()
			if err != nil {
				return err
			}
			switch key {
			case "id":
				info.ID = s
			case "title":
				if info.Title == "" {
					info.Title = s
				}
			case "fulltitle":
				info.Title = s
			case "description":
				info.Description = s
			case "uploader":
				info.Uploader = s
			}
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Info{}, errors.Wrap(err, "розбір info.json")
	}
	return info, nil
}
