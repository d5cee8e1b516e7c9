package yt

// galleryArgs аргументи gallery-dl для каруселей фото, які yt-dlp не бере.
// Файли кладуться в ту ж директорію з тим же префіксом, тож resolver знайде їх так само.
func galleryArgs(r Request) []string {
	args := []string{
		"-o", "overwrite=true",
		"--no-part",
		"-D", r.Dir,
		"-f", r.Prefix + "_{num:>05}.{extension}",
	}
	if r.Cookies != "" {
		args = append(args, "--cookies", r.Cookies)
	}
	return append(args, r.URL)
}
