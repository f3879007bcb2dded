package utils

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"image"
)

// BytesMD5 计算字节数组MD5
func BytesMD5(data []byte) string {
	hash := md5.New()
	hash.Write(data)
	return hex.EncodeToString(hash.Sum(nil))
}

// ImageHash 计算图像内容哈希（尺寸 + 像素），用作人脸检测缓存的键
func ImageHash(img *image.NRGBA) string {
	hash := md5.New()

	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:4], uint32(img.Rect.Dx()))
	binary.LittleEndian.PutUint32(dims[4:8], uint32(img.Rect.Dy()))
	hash.Write(dims[:])

	rowLen := img.Rect.Dx() * 4
	for y := img.Rect.Min.Y; y < img.Rect.Max.Y; y++ {
		off := img.PixOffset(img.Rect.Min.X, y)
		hash.Write(img.Pix[off : off+rowLen])
	}

	return hex.EncodeToString(hash.Sum(nil))
}
